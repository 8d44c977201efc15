// Package server assembles the BCH receiver service: the UDP audio
// pipeline, the sensor reading store, and the HTTP status API, run as one
// unit with cooperative shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/HansOlavAarvik/BCH-server/pkg/audio"
	"github.com/HansOlavAarvik/BCH-server/pkg/receiver"
	"github.com/HansOlavAarvik/BCH-server/pkg/sensor"
)

// statsLogInterval is how often the stream counters are summarized to the
// log while running.
const statsLogInterval = 60 * time.Second

// Server ties the stream pipeline, sensor store, and HTTP API together.
type Server struct {
	cfg      Config
	pipeline *receiver.Pipeline
	store    sensor.Store
}

// New builds a server from the configuration: output sinks, sensor store,
// and the stream pipeline.
func New(cfg Config) (*Server, error) {
	sink, err := buildSink(cfg)
	if err != nil {
		return nil, err
	}

	pipeline, err := receiver.NewPipeline(cfg.Stream, sink)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}

	store, err := buildStore(cfg.Storage)
	if err != nil {
		_ = sink.Close()
		return nil, err
	}

	s := &Server{cfg: cfg, pipeline: pipeline, store: store}
	pipeline.SetSensorHandler(s.handleSensorDatagram)
	return s, nil
}

// buildSink assembles the configured output chain. Multiple outputs fan out
// through a MultiSink; none at all degrades to a discard sink so the
// pipeline still exercises reassembly and stats.
func buildSink(cfg Config) (audio.Sink, error) {
	var sinks audio.MultiSink

	if cfg.Sink.Speaker {
		sp, err := audio.NewSpeakerSink(float64(cfg.Stream.SampleRate), cfg.Stream.ChunkSamples, cfg.Sink.SpeakerDevice)
		if err != nil {
			return nil, fmt.Errorf("server: speaker sink: %w", err)
		}
		if err := sp.Start(); err != nil {
			return nil, fmt.Errorf("server: speaker sink: %w", err)
		}
		sinks = append(sinks, sp)
	}
	if cfg.Sink.WAVPath != "" {
		fs, err := audio.NewFileSink(cfg.Sink.WAVPath, cfg.Stream.SampleRate)
		if err != nil {
			_ = sinks.Close()
			return nil, fmt.Errorf("server: file sink: %w", err)
		}
		slog.Info("recording stream", "path", cfg.Sink.WAVPath)
		sinks = append(sinks, fs)
	}

	if len(sinks) == 0 {
		slog.Warn("no output sink configured, discarding audio")
		return discardSink{}, nil
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}

func buildStore(cfg StorageConfig) (sensor.Store, error) {
	if cfg.DBPath == "" {
		return sensor.NewMemoryStore(0), nil
	}
	st, err := sensor.NewSQLStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("server: open sensor store: %w", err)
	}
	slog.Info("sensor store open", "path", cfg.DBPath)
	return st, nil
}

// discardSink drops all audio.
type discardSink struct{}

func (discardSink) WriteFrame([]int16) error { return nil }
func (discardSink) Close() error             { return nil }

// Run blocks until ctx is cancelled or a fatal error occurs. The stream
// pipeline, the HTTP API, and the periodic stats log all stop together.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if err := s.store.Close(); err != nil {
			slog.Warn("sensor store close failed", "err", err)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.pipeline.Run(ctx) })

	if s.cfg.HTTP.Enabled {
		srv := &http.Server{
			Addr:              s.cfg.HTTP.Addr,
			Handler:           s.newMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			slog.Info("HTTP API listening", "addr", s.cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server: http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	s.pipeline.Stats().StartPeriodicLog(statsLogInterval, ctx.Done())

	return g.Wait()
}

// Stats returns the stream counters, for status consumers.
func (s *Server) Stats() *receiver.Stats {
	return s.pipeline.Stats()
}

// handleSensorDatagram parses and stores one JSON datagram from the shared
// socket. Failures are logged and dropped; sensor noise never disturbs the
// audio path.
func (s *Server) handleSensorDatagram(data []byte, src *net.UDPAddr) {
	var ip net.IP
	if src != nil {
		ip = src.IP
	}
	reading, err := sensor.ParseDatagram(data, ip)
	if err != nil {
		slog.Debug("ignoring JSON datagram", "from", src, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.store.SaveReading(ctx, reading); err != nil {
		slog.Error("failed to store sensor reading", "device", reading.DeviceID, "err", err)
		return
	}
	slog.Debug("sensor reading stored",
		"device", reading.DeviceID,
		"inside_temp", reading.InsideTemperature,
		"door_closed", reading.DoorClosed,
	)
}
