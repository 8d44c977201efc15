package receiver

import (
	"sync"
	"time"
)

// JitterBuffer is a capacity-bounded strict-FIFO queue of audio chunks,
// the single synchronization point between the network and playback
// goroutines. It smooths arrival timing only; ordering is the
// Reassembler's job and chunks are never resequenced here.
//
// Push on a full buffer evicts the oldest chunk to admit the newest: an
// audio stream prefers fresh samples to stale ones, and bounded occupancy
// keeps the end-to-end latency bounded.
type JitterBuffer struct {
	mu     sync.Mutex
	buf    []*Chunk // ring storage, len == capacity
	head   int
	count  int
	target int
	primed bool

	notify chan struct{}
	stats  *Stats
}

// NewJitterBuffer creates a buffer holding at most capacity chunks, primed
// once occupancy first reaches targetDepth.
func NewJitterBuffer(capacity, targetDepth int, stats *Stats) *JitterBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if targetDepth < 1 {
		targetDepth = 1
	}
	if targetDepth > capacity {
		targetDepth = capacity
	}
	return &JitterBuffer{
		buf:    make([]*Chunk, capacity),
		target: targetDepth,
		notify: make(chan struct{}, 1),
		stats:  stats,
	}
}

// Push enqueues a chunk, evicting the oldest one first if the buffer is
// full. Returns false when an eviction was needed.
func (jb *JitterBuffer) Push(c *Chunk) bool {
	jb.mu.Lock()
	admittedClean := true
	if jb.count == len(jb.buf) {
		jb.buf[jb.head] = nil
		jb.head = (jb.head + 1) % len(jb.buf)
		jb.count--
		jb.stats.OverflowEvictions.Add(1)
		jb.stats.PacketsDroppedFull.Add(1)
		admittedClean = false
	}
	jb.buf[(jb.head+jb.count)%len(jb.buf)] = c
	jb.count++
	if jb.count >= jb.target {
		jb.primed = true
	}
	jb.mu.Unlock()

	select {
	case jb.notify <- struct{}{}:
	default:
	}
	return admittedClean
}

// Pop dequeues the oldest chunk, waiting up to timeout for one to arrive.
// A timeout is the underrun signal, not an error: it returns (nil, false)
// and clears the primed flag.
func (jb *JitterBuffer) Pop(timeout time.Duration) (*Chunk, bool) {
	deadline := time.Now().Add(timeout)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		jb.mu.Lock()
		if jb.count > 0 {
			c := jb.buf[jb.head]
			jb.buf[jb.head] = nil
			jb.head = (jb.head + 1) % len(jb.buf)
			jb.count--
			jb.mu.Unlock()
			return c, true
		}
		jb.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if timer == nil {
			timer = time.NewTimer(remaining)
		} else {
			timer.Reset(remaining)
		}
		select {
		case <-jb.notify:
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
		}
	}

	jb.mu.Lock()
	jb.primed = false // starvation
	jb.mu.Unlock()
	return nil, false
}

// Occupancy returns the number of buffered chunks.
func (jb *JitterBuffer) Occupancy() int {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return jb.count
}

// TargetDepth returns the configured pre-roll depth.
func (jb *JitterBuffer) TargetDepth() int {
	return jb.target
}

// Primed reports whether occupancy has reached the target depth since the
// last starvation event.
func (jb *JitterBuffer) Primed() bool {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	return jb.primed
}
