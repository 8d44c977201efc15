package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/HansOlavAarvik/BCH-server/pkg/audio"
	"github.com/HansOlavAarvik/BCH-server/pkg/logging"
	"github.com/HansOlavAarvik/BCH-server/pkg/server"
	"github.com/HansOlavAarvik/BCH-server/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults used when empty)")

	listen := flag.String("listen", "", "UDP bind address for the device stream")
	device := flag.String("device", "", "Sampling device address (for START/STOP and source filtering)")
	control := flag.Bool("control", false, "Send START on startup and STOP on shutdown")
	wavPath := flag.String("wav", "", "Record the stream to this WAV file")
	speaker := flag.Bool("speaker", true, "Play the stream on the default output device")
	dbPath := flag.String("db", "", "SQLite file for sensor readings (in-memory when empty)")
	httpAddr := flag.String("http", "", "HTTP bind address for the status API (empty to disable)")
	logLevel := flag.String("log-level", "info", "Log level: "+logging.LevelNames())
	logFormat := flag.String("log-format", "text", "Log format: text or json")
	showVersion := flag.Bool("version", false, "Print version and exit")
	listDevices := flag.Bool("list-devices", false, "List audio output devices and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("bch-server " + version.Full())
		return
	}
	if *listDevices {
		devices, err := audio.ListOutputDevices()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list devices: %v\n", err)
			os.Exit(1)
		}
		for _, d := range devices {
			marker := " "
			if d.IsDefault {
				marker = "*"
			}
			fmt.Printf("%s %s (%d channels)\n", marker, d.Name, d.MaxOutputs)
		}
		return
	}

	cfg := server.DefaultConfig()
	if *configPath != "" {
		loaded, err := server.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		cfg = *loaded
	}

	// Flags given on the command line override the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Stream.ListenAddr = *listen
		case "device":
			cfg.Stream.DeviceAddr = *device
		case "control":
			cfg.Stream.SendControl = *control
		case "wav":
			cfg.Sink.WAVPath = *wavPath
		case "speaker":
			cfg.Sink.Speaker = *speaker
		case "db":
			cfg.Storage.DBPath = *dbPath
		case "http":
			cfg.HTTP.Addr = *httpAddr
			cfg.HTTP.Enabled = *httpAddr != ""
		case "log-level":
			cfg.Logging.Level = *logLevel
		case "log-format":
			cfg.Logging.Format = *logFormat
		}
	})

	// Configure structured logging
	if err := logging.Setup(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stdout,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	srv, err := server.New(cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
