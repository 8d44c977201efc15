package receiver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingSink captures every frame written to it.
type recordingSink struct {
	mu     sync.Mutex
	frames [][]int16
	err    error // returned by WriteFrame when set
	closed bool
}

func (s *recordingSink) WriteFrame(pcm []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	frame := make([]int16, len(pcm))
	copy(frame, pcm)
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *recordingSink) frame(i int) []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[i]
}

func TestDriverWaitsForPriming(t *testing.T) {
	stats := NewStats(time.Millisecond)
	jb := NewJitterBuffer(10, 3, stats)
	sink := &recordingSink{}
	d := NewSinkDriver(jb, sink, stats, 4, 20*time.Millisecond, 5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// Below target depth: nothing may reach the sink.
	jb.Push(&Chunk{Samples: []int16{1}})
	time.Sleep(80 * time.Millisecond)
	if got := sink.frameCount(); got != 0 {
		t.Fatalf("sink received %d frames before priming", got)
	}

	jb.Push(&Chunk{Samples: []int16{2}})
	jb.Push(&Chunk{Samples: []int16{3}})

	deadline := time.After(time.Second)
	for sink.frameCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("sink received %d frames, want 3", sink.frameCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if d.State() != StateStopped {
		t.Errorf("State() = %v, want StateStopped", d.State())
	}
}

func TestDriverMasksGapsWithSilence(t *testing.T) {
	stats := NewStats(time.Millisecond)
	jb := NewJitterBuffer(10, 1, stats)
	sink := &recordingSink{}
	d := NewSinkDriver(jb, sink, stats, 4, 10*time.Millisecond, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	jb.Push(&Chunk{Samples: []int16{7, 7}})

	// One real frame, then silence frames while the buffer stays empty.
	deadline := time.After(time.Second)
	for sink.frameCount() < 4 {
		select {
		case <-deadline:
			t.Fatalf("sink received %d frames, want at least 4", sink.frameCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	first := sink.frame(0)
	if len(first) != 2 || first[0] != 7 {
		t.Errorf("frame 0 = %v, want the real chunk", first)
	}
	second := sink.frame(1)
	if len(second) != 4 {
		t.Fatalf("len(silence frame) = %d, want 4", len(second))
	}
	for i, s := range second {
		if s != 0 {
			t.Errorf("silence frame sample %d = %d, want 0", i, s)
		}
	}
	if stats.Underruns.Load() == 0 {
		t.Error("Underruns = 0, want underruns counted during the gap")
	}
}

func TestDriverRebuffersAfterSustainedUnderrun(t *testing.T) {
	stats := NewStats(time.Millisecond)
	jb := NewJitterBuffer(10, 2, stats)
	sink := &recordingSink{}
	// Sustain of 2: the third consecutive underrun forces re-buffering.
	d := NewSinkDriver(jb, sink, stats, 4, 5*time.Millisecond, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	jb.Push(&Chunk{Samples: []int16{1}})
	jb.Push(&Chunk{Samples: []int16{2}})

	// Drain, then let underruns accumulate past the sustain threshold.
	deadline := time.After(time.Second)
	for d.State() != StatePrebuffering || jb.Primed() {
		select {
		case <-deadline:
			t.Fatalf("driver state = %v, primed = %t; want re-buffering", d.State(), jb.Primed())
		case <-time.After(5 * time.Millisecond):
		}
	}

	// A single chunk must not restart playback; the full pre-roll must.
	jb.Push(&Chunk{Samples: []int16{3}})
	time.Sleep(60 * time.Millisecond)
	if d.State() != StatePrebuffering {
		t.Fatalf("driver resumed below target depth")
	}
	jb.Push(&Chunk{Samples: []int16{4}})

	deadline = time.After(time.Second)
	for sink.frameCount() < 4 {
		select {
		case <-deadline:
			t.Fatalf("driver never resumed after re-priming")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestDriverReturnsSinkError(t *testing.T) {
	stats := NewStats(time.Millisecond)
	jb := NewJitterBuffer(10, 1, stats)
	sinkErr := errors.New("device gone")
	sink := &recordingSink{err: sinkErr}
	d := NewSinkDriver(jb, sink, stats, 4, 10*time.Millisecond, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	jb.Push(&Chunk{Samples: []int16{1}})

	select {
	case err := <-done:
		if !errors.Is(err, sinkErr) {
			t.Fatalf("Run() error = %v, want wrapped sink error", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after sink failure")
	}
}
