package receiver

import (
	"testing"
	"time"
)

func TestJitterBufferFIFO(t *testing.T) {
	jb := NewJitterBuffer(10, 3, NewStats(time.Millisecond))

	for seq := uint16(0); seq < 5; seq++ {
		jb.Push(&Chunk{Sequence: seq})
	}
	for want := uint16(0); want < 5; want++ {
		c, ok := jb.Pop(time.Millisecond)
		if !ok {
			t.Fatalf("Pop() = (nil, false), want chunk %d", want)
		}
		if c.Sequence != want {
			t.Errorf("Pop() sequence = %d, want %d", c.Sequence, want)
		}
	}
	if got := jb.Occupancy(); got != 0 {
		t.Errorf("Occupancy() = %d, want 0", got)
	}
}

func TestJitterBufferBoundedOccupancy(t *testing.T) {
	stats := NewStats(time.Millisecond)
	jb := NewJitterBuffer(4, 2, stats)

	for seq := uint16(0); seq < 10; seq++ {
		jb.Push(&Chunk{Sequence: seq})
	}
	if got := jb.Occupancy(); got != 4 {
		t.Fatalf("Occupancy() = %d, want capacity 4", got)
	}
	if got := stats.OverflowEvictions.Load(); got != 6 {
		t.Errorf("OverflowEvictions = %d, want 6", got)
	}
	if got := stats.PacketsDroppedFull.Load(); got != 6 {
		t.Errorf("PacketsDroppedFull = %d, want 6", got)
	}

	// Oldest-first eviction: the survivors are the newest four, in order.
	for want := uint16(6); want < 10; want++ {
		c, ok := jb.Pop(time.Millisecond)
		if !ok || c.Sequence != want {
			t.Errorf("Pop() = (%+v, %t), want sequence %d", c, ok, want)
		}
	}
}

func TestJitterBufferPriming(t *testing.T) {
	jb := NewJitterBuffer(10, 3, NewStats(time.Millisecond))

	if jb.Primed() {
		t.Fatal("Primed() = true on empty buffer")
	}
	jb.Push(&Chunk{})
	jb.Push(&Chunk{})
	if jb.Primed() {
		t.Fatal("Primed() = true below target depth")
	}
	jb.Push(&Chunk{})
	if !jb.Primed() {
		t.Fatal("Primed() = false at target depth")
	}

	// Draining below the target does not unprime; only starvation does.
	jb.Pop(time.Millisecond)
	jb.Pop(time.Millisecond)
	jb.Pop(time.Millisecond)
	if !jb.Primed() {
		t.Fatal("Primed() = false after draining, want true until starvation")
	}
	if _, ok := jb.Pop(time.Millisecond); ok {
		t.Fatal("Pop() on empty buffer returned a chunk")
	}
	if jb.Primed() {
		t.Fatal("Primed() = true after starvation")
	}
}

func TestJitterBufferPopTimeout(t *testing.T) {
	jb := NewJitterBuffer(10, 1, NewStats(time.Millisecond))

	start := time.Now()
	c, ok := jb.Pop(30 * time.Millisecond)
	if ok || c != nil {
		t.Fatalf("Pop() = (%+v, %t), want timeout", c, ok)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Pop() returned after %v, want it to honor the timeout", elapsed)
	}
}

func TestJitterBufferPopWakesOnPush(t *testing.T) {
	jb := NewJitterBuffer(10, 1, NewStats(time.Millisecond))

	go func() {
		time.Sleep(10 * time.Millisecond)
		jb.Push(&Chunk{Sequence: 42})
	}()

	c, ok := jb.Pop(time.Second)
	if !ok {
		t.Fatal("Pop() timed out waiting for concurrent push")
	}
	if c.Sequence != 42 {
		t.Errorf("Pop() sequence = %d, want 42", c.Sequence)
	}
}

func TestJitterBufferClampsTarget(t *testing.T) {
	jb := NewJitterBuffer(2, 50, NewStats(time.Millisecond))
	if got := jb.TargetDepth(); got != 2 {
		t.Errorf("TargetDepth() = %d, want clamped to capacity 2", got)
	}
}
