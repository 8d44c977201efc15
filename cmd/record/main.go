package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HansOlavAarvik/BCH-server/pkg/audio"
	"github.com/HansOlavAarvik/BCH-server/pkg/logging"
	"github.com/HansOlavAarvik/BCH-server/pkg/receiver"
	"github.com/HansOlavAarvik/BCH-server/pkg/version"
)

func main() {
	cfg := receiver.DefaultConfig()

	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "UDP bind address for the device stream")
	flag.StringVar(&cfg.DeviceAddr, "device", cfg.DeviceAddr, "Sampling device address for START/STOP control")
	flag.BoolVar(&cfg.SendControl, "control", false, "Send START before recording and STOP after")
	flag.IntVar(&cfg.SampleRate, "rate", cfg.SampleRate, "PCM sample rate in Hz")
	flag.IntVar(&cfg.ChunkSamples, "chunk", cfg.ChunkSamples, "Samples per audio chunk")
	duration := flag.Duration("duration", 10*time.Second, "How long to record")
	output := flag.String("o", "recording.wav", "Output WAV file")
	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("bch-record " + version.Full())
		return
	}

	if err := logging.Setup(logging.Options{Level: *logLevel, Output: os.Stderr}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	sink, err := audio.NewFileSink(*output, cfg.SampleRate)
	if err != nil {
		slog.Error("failed to create output file", "path", *output, "err", err)
		os.Exit(1)
	}

	pipeline, err := receiver.NewPipeline(cfg, sink)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	slog.Info("recording", "output", *output, "duration", *duration, "listen", cfg.ListenAddr)
	if err := pipeline.Run(ctx); err != nil {
		slog.Error("recording failed", "err", err)
		os.Exit(1)
	}

	snap := pipeline.Stats().Snapshot()
	fmt.Printf("wrote %s: %.1fs of audio, %d packets in, %d chunks, %d underruns, %d dropped\n",
		*output, snap.StreamSeconds, snap.PacketsReceived, snap.PacketsReassembled,
		snap.Underruns, snap.PacketsDroppedStale+snap.PacketsDroppedFull+snap.PacketsDroppedMalformed)
}
