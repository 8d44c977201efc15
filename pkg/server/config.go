package server

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/HansOlavAarvik/BCH-server/pkg/logging"
	"github.com/HansOlavAarvik/BCH-server/pkg/receiver"
)

// Config is the complete service configuration.
type Config struct {
	Stream  receiver.Config `yaml:"stream"`
	Sink    SinkConfig      `yaml:"sink"`
	Storage StorageConfig   `yaml:"storage"`
	HTTP    HTTPConfig      `yaml:"http"`
	Logging LoggingConfig   `yaml:"logging"`
}

// SinkConfig selects where reconstructed audio goes. Speaker and file output
// can be combined; with neither enabled the stream is received and counted
// but discarded.
type SinkConfig struct {
	Speaker       bool   `yaml:"speaker"`
	SpeakerDevice string `yaml:"speaker_device,omitempty"` // substring match, empty = default output
	WAVPath       string `yaml:"wav_path,omitempty"`       // record to this file when set
}

// StorageConfig configures sensor reading persistence.
type StorageConfig struct {
	DBPath string `yaml:"db_path"` // SQLite file; empty = in-memory store
}

// HTTPConfig configures the status and metrics API.
type HTTPConfig struct {
	Addr    string `yaml:"addr"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Stream: receiver.DefaultConfig(),
		Sink:   SinkConfig{Speaker: true},
		HTTP:   HTTPConfig{Addr: ":8080", Enabled: true},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses the configuration file, layered over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI flag
	if err != nil {
		return nil, fmt.Errorf("server: read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("server: parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("server: config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return fmt.Errorf("http config: addr cannot be empty when enabled")
	}
	if err := logging.Validate(c.Logging.Level); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}
