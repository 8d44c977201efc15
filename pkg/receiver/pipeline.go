package receiver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HansOlavAarvik/BCH-server/pkg/audio"
	"github.com/HansOlavAarvik/BCH-server/pkg/protocol"
)

// readTimeout bounds each socket read so the receive loop notices
// cancellation; a timeout is the liveness check, not an error.
const readTimeout = 100 * time.Millisecond

// SensorFunc handles non-audio datagrams (JSON sensor readings) that share
// the listen socket. The slice is only valid for the duration of the call.
type SensorFunc func(data []byte, src *net.UDPAddr)

// Pipeline owns all shared stream state: the socket, the reassembly tables,
// the jitter buffer, and the sink driver. The network goroutine and the
// playback goroutine meet only at the jitter buffer.
type Pipeline struct {
	cfg    Config
	stats  *Stats
	jb     *JitterBuffer
	reasm  *Reassembler
	in     *Ingress
	driver *SinkDriver
	sink   audio.Sink

	mu       sync.Mutex
	conn     *net.UDPConn
	onSensor SensorFunc
}

// NewPipeline builds a pipeline writing to sink. The pipeline takes
// ownership of the sink and closes it when Run returns.
func NewPipeline(cfg Config, sink audio.Sink) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("receiver: config: %w", err)
	}

	stats := NewStats(cfg.ChunkDuration())
	jb := NewJitterBuffer(cfg.Capacity(), cfg.TargetDepth(), stats)
	reasm := NewReassembler(cfg.StaleWindow, stats)

	return &Pipeline{
		cfg:    cfg,
		stats:  stats,
		jb:     jb,
		reasm:  reasm,
		in:     NewIngress(cfg, reasm, stats),
		driver: NewSinkDriver(jb, sink, stats, cfg.ChunkSamples, cfg.ChunkDuration(), cfg.UnderrunSustain),
		sink:   sink,
	}, nil
}

// SetSensorHandler installs a handler for JSON datagrams sharing the listen
// socket. Must be called before Run.
func (p *Pipeline) SetSensorHandler(fn SensorFunc) {
	p.onSensor = fn
}

// Stats returns the pipeline's counters.
func (p *Pipeline) Stats() *Stats {
	return p.stats
}

// Occupancy reports the current jitter buffer depth.
func (p *Pipeline) Occupancy() int {
	return p.jb.Occupancy()
}

// LocalAddr returns the bound listen address, or nil before Run has bound
// the socket. The ephemeral port is needed when listening on ":0".
func (p *Pipeline) LocalAddr() net.Addr {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	return p.conn.LocalAddr()
}

// Run binds the socket and runs the receive and playback loops until ctx is
// cancelled or one of them fails. Shutdown is cooperative: cancellation is
// observed at every loop iteration, no wait is unbounded, and remaining
// buffered chunks are discarded (no durability is promised).
func (p *Pipeline) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", p.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("receiver: resolve listen addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("receiver: listen: %w", err)
	}
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	if err := conn.SetReadBuffer(256 * 1024); err != nil {
		slog.Warn("failed to set UDP read buffer", "err", err)
	}

	slog.Info("audio stream listening",
		"addr", p.cfg.ListenAddr,
		"rate", p.cfg.SampleRate,
		"chunk_samples", p.cfg.ChunkSamples,
		"target_depth", p.cfg.TargetDepth(),
		"capacity", p.cfg.Capacity(),
	)

	if p.cfg.SendControl {
		if err := p.sendControl(protocol.StartCommand); err != nil {
			slog.Warn("failed to send START", "err", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.receiveLoop(ctx) })
	g.Go(func() error { return p.driver.Run(ctx) })
	runErr := g.Wait()

	if p.cfg.SendControl {
		if err := p.sendControl(protocol.StopCommand); err != nil {
			slog.Warn("failed to send STOP", "err", err)
		}
	}
	_ = conn.Close()
	if err := p.sink.Close(); err != nil {
		slog.Warn("sink close failed", "err", err)
	}

	p.stats.LogSummary()
	return runErr
}

// receiveLoop reads datagrams and feeds them through ingress and reassembly
// into the jitter buffer. Packet-level errors are recovered locally: a bad
// datagram never interrupts the stream. Socket errors are fatal and cancel
// the playback loop through the errgroup context.
func (p *Pipeline) receiveLoop(ctx context.Context) error {
	buf := make([]byte, protocol.MaxDatagram)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := p.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return fmt.Errorf("receiver: set read deadline: %w", err)
		}
		n, src, err := p.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("receiver: socket: %w", err)
		}

		data := buf[:n]
		if p.onSensor != nil && n > 0 && data[0] == '{' {
			p.onSensor(data, src)
			continue
		}

		chunk, err := p.in.Ingest(data, src)
		if err != nil {
			slog.Debug("dropped datagram", "from", src, "err", err)
			continue
		}
		if chunk != nil {
			p.jb.Push(chunk)
		}
	}
}

// sendControl fires one out-of-band command datagram at the device.
// No acknowledgment is expected.
func (p *Pipeline) sendControl(cmd string) error {
	if p.cfg.DeviceAddr == "" {
		return nil
	}
	conn, err := net.Dial("udp", p.cfg.DeviceAddr)
	if err != nil {
		return fmt.Errorf("receiver: dial device: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(cmd)); err != nil {
		return fmt.Errorf("receiver: send %s: %w", cmd, err)
	}
	slog.Debug("control command sent", "cmd", cmd, "device", p.cfg.DeviceAddr)
	return nil
}
