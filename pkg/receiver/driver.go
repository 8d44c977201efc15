package receiver

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/HansOlavAarvik/BCH-server/pkg/audio"
)

// DriverState is the Sink Driver's playback state.
type DriverState int

const (
	// StatePrebuffering withholds output until the jitter buffer is primed.
	StatePrebuffering DriverState = iota
	// StatePlaying drains chunks at the output clock, masking transient
	// gaps with silence.
	StatePlaying
	// StateStopped is terminal; the sink has been released.
	StateStopped
)

// prerollPoll bounds how long the driver waits between occupancy checks
// while prebuffering, so shutdown is always serviced promptly.
const prerollPoll = 50 * time.Millisecond

// SinkDriver pulls chunks from the jitter buffer at the audio clock rate and
// writes them to the sink. When supply is exhausted it synthesizes silence;
// when starvation is sustained it falls back to prebuffering rather than
// oscillating between tiny fills and immediate re-starvation.
type SinkDriver struct {
	jb      *JitterBuffer
	sink    audio.Sink
	stats   *Stats
	silence []int16

	popTimeout time.Duration
	sustain    int

	// state is written only by Run but observed from other goroutines
	// (status endpoints, tests).
	state atomic.Int32
}

// NewSinkDriver creates a driver producing to sink. silenceSamples is the
// size of one synthesized silence block (normally one chunk), popTimeout the
// bounded wait per tick, and sustain the consecutive-underrun count that
// forces re-buffering.
func NewSinkDriver(jb *JitterBuffer, sink audio.Sink, stats *Stats, silenceSamples int, popTimeout time.Duration, sustain int) *SinkDriver {
	return &SinkDriver{
		jb:         jb,
		sink:       sink,
		stats:      stats,
		silence:    audio.Silence(silenceSamples),
		popTimeout: popTimeout,
		sustain:    sustain,
	}
}

// State returns the current playback state.
func (d *SinkDriver) State() DriverState {
	return DriverState(d.state.Load())
}

// Run drives the sink until ctx is cancelled or the sink fails. A sink write
// failure is terminal for the playback session and is returned to the caller
// so the rest of the pipeline can shut down cooperatively. The sink itself is
// owned and closed by the caller.
func (d *SinkDriver) Run(ctx context.Context) error {
	defer d.state.Store(int32(StateStopped))

	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		switch DriverState(d.state.Load()) {
		case StatePrebuffering:
			if d.jb.Primed() {
				slog.Info("pre-roll complete, playback starting", "occupancy", d.jb.Occupancy())
				d.state.Store(int32(StatePlaying))
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(prerollPoll):
			}

		case StatePlaying:
			chunk, ok := d.jb.Pop(d.popTimeout)
			if ok {
				consecutive = 0
				if err := d.sink.WriteFrame(chunk.Samples); err != nil {
					return fmt.Errorf("receiver: sink write: %w", err)
				}
				continue
			}

			d.stats.Underruns.Add(1)
			consecutive++
			if consecutive > d.sustain {
				slog.Warn("sustained underrun, re-buffering", "consecutive", consecutive)
				consecutive = 0
				d.state.Store(int32(StatePrebuffering))
				continue
			}
			// Transient gap: mask it with one silence block so the
			// output stream keeps its cadence without clicks.
			if err := d.sink.WriteFrame(d.silence); err != nil {
				return fmt.Errorf("receiver: sink write: %w", err)
			}
		}
	}
}
