package receiver

import (
	"fmt"
	"net"
	"time"
)

// Config holds the stream pipeline configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"` // UDP bind address (e.g. ":6001")
	DeviceAddr string `yaml:"device_addr"` // sampling device address, for source filtering and START/STOP control

	SendControl    bool     `yaml:"send_control"`              // send START on startup and STOP on shutdown to DeviceAddr
	FilterSource   bool     `yaml:"filter_source"`             // drop datagrams not from DeviceAddr/AllowedSources
	AllowedSources []string `yaml:"allowed_sources,omitempty"` // additional allow-listed sender IPs

	SampleRate   int `yaml:"sample_rate"`   // PCM sample rate in Hz
	ChunkSamples int `yaml:"chunk_samples"` // samples per audio chunk

	JitterTargetMs  int `yaml:"jitter_target_ms"` // pre-roll depth in milliseconds
	JitterCapacity  int `yaml:"jitter_capacity"`  // max buffered chunks (0 = derived from target)
	StaleWindow     int `yaml:"stale_window"`     // reassembly acceptance window in sequence numbers
	UnderrunSustain int `yaml:"underrun_sustain"` // consecutive underruns before re-buffering
}

// DefaultConfig returns the defaults matching the cabinet device deployment.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":6001",
		SampleRate:      32000,
		ChunkSamples:    1024,
		JitterTargetMs:  200,
		StaleWindow:     30,
		UnderrunSustain: 50,
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr cannot be empty")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.ChunkSamples <= 0 {
		return fmt.Errorf("chunk_samples must be positive, got %d", c.ChunkSamples)
	}
	if c.JitterTargetMs <= 0 {
		return fmt.Errorf("jitter_target_ms must be positive, got %d", c.JitterTargetMs)
	}
	if c.JitterCapacity < 0 {
		return fmt.Errorf("jitter_capacity cannot be negative, got %d", c.JitterCapacity)
	}
	if c.StaleWindow <= 0 {
		return fmt.Errorf("stale_window must be positive, got %d", c.StaleWindow)
	}
	if c.UnderrunSustain <= 0 {
		return fmt.Errorf("underrun_sustain must be positive, got %d", c.UnderrunSustain)
	}
	if c.FilterSource && c.DeviceAddr == "" && len(c.AllowedSources) == 0 {
		return fmt.Errorf("filter_source requires device_addr or allowed_sources")
	}
	if c.DeviceAddr != "" {
		if _, _, err := net.SplitHostPort(c.DeviceAddr); err != nil {
			return fmt.Errorf("device_addr %q: %w", c.DeviceAddr, err)
		}
	}
	return nil
}

// ChunkDuration returns the wall-clock duration of one chunk of audio.
func (c Config) ChunkDuration() time.Duration {
	return time.Duration(c.ChunkSamples) * time.Second / time.Duration(c.SampleRate)
}

// TargetDepth returns the pre-roll depth in chunks derived from the
// configured jitter latency.
func (c Config) TargetDepth() int {
	samples := c.JitterTargetMs * c.SampleRate / 1000
	depth := (samples + c.ChunkSamples - 1) / c.ChunkSamples
	if depth < 1 {
		depth = 1
	}
	return depth
}

// Capacity returns the jitter buffer capacity in chunks. When not set
// explicitly it is twice the target depth, never below 10 and never below
// the target depth itself.
func (c Config) Capacity() int {
	cap := c.JitterCapacity
	if cap == 0 {
		cap = 2 * c.TargetDepth()
		if cap < 10 {
			cap = 10
		}
	}
	if cap < c.TargetDepth() {
		cap = c.TargetDepth()
	}
	return cap
}

// sourceAllowed reports whether a sender IP passes the configured filter.
func (c Config) sourceAllowed(ip net.IP) bool {
	if !c.FilterSource {
		return true
	}
	if c.DeviceAddr != "" {
		if host, _, err := net.SplitHostPort(c.DeviceAddr); err == nil {
			if dev := net.ParseIP(host); dev != nil && dev.Equal(ip) {
				return true
			}
		}
	}
	for _, s := range c.AllowedSources {
		if a := net.ParseIP(s); a != nil && a.Equal(ip) {
			return true
		}
	}
	return false
}
