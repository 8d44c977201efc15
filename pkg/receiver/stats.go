package receiver

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats tracks pipeline counters. All counters are lock-free atomic
// increments so the network and playback loops never stall on them.
type Stats struct {
	startTime     time.Time
	chunkDuration time.Duration

	PacketsReceived     atomic.Int64 // datagrams accepted by ingress
	PacketsReassembled  atomic.Int64 // audio chunks produced (single or reassembled)
	PacketsDroppedStale atomic.Int64 // pending entries evicted past the acceptance window
	PacketsDroppedFull  atomic.Int64 // chunks discarded because the jitter buffer was full

	PacketsDroppedMalformed atomic.Int64 // datagrams shorter than the header
	PacketsDroppedFiltered  atomic.Int64 // datagrams from unrecognized sources
	PacketsDroppedBadIndex  atomic.Int64 // fragments with an out-of-range index

	Underruns         atomic.Int64 // playback ticks with no chunk available
	OverflowEvictions atomic.Int64 // oldest chunks evicted on push

	SilentChunks atomic.Int64 // chunks whose RMS level sat below the silence floor
}

// NewStats creates a Stats with the clock started now. chunkDuration is used
// to estimate the reconstructed stream duration.
func NewStats(chunkDuration time.Duration) *Stats {
	return &Stats{startTime: time.Now(), chunkDuration: chunkDuration}
}

// Snapshot is a point-in-time view of all counters plus derived rates.
// Never mutated by readers.
type Snapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	PacketsReceived     int64 `json:"packets_received"`
	PacketsReassembled  int64 `json:"packets_reassembled"`
	PacketsDroppedStale int64 `json:"packets_dropped_stale"`
	PacketsDroppedFull  int64 `json:"packets_dropped_full"`

	PacketsDroppedMalformed int64 `json:"packets_dropped_malformed"`
	PacketsDroppedFiltered  int64 `json:"packets_dropped_filtered"`
	PacketsDroppedBadIndex  int64 `json:"packets_dropped_bad_index"`

	Underruns         int64 `json:"underruns"`
	OverflowEvictions int64 `json:"overflow_evictions"`
	SilentChunks      int64 `json:"silent_chunks"`

	PacketsPerSecond float64 `json:"packets_per_second"`
	StreamSeconds    float64 `json:"stream_seconds"`
}

// Snapshot returns a read-consistent snapshot of all counters.
func (s *Stats) Snapshot() Snapshot {
	uptime := time.Since(s.startTime)
	received := s.PacketsReceived.Load()
	reassembled := s.PacketsReassembled.Load()

	snap := Snapshot{
		Uptime:                  uptime.Truncate(time.Second).String(),
		UptimeSeconds:           int64(uptime.Seconds()),
		PacketsReceived:         received,
		PacketsReassembled:      reassembled,
		PacketsDroppedStale:     s.PacketsDroppedStale.Load(),
		PacketsDroppedFull:      s.PacketsDroppedFull.Load(),
		PacketsDroppedMalformed: s.PacketsDroppedMalformed.Load(),
		PacketsDroppedFiltered:  s.PacketsDroppedFiltered.Load(),
		PacketsDroppedBadIndex:  s.PacketsDroppedBadIndex.Load(),
		Underruns:               s.Underruns.Load(),
		OverflowEvictions:       s.OverflowEvictions.Load(),
		SilentChunks:            s.SilentChunks.Load(),
		StreamSeconds:           float64(reassembled) * s.chunkDuration.Seconds(),
	}
	if secs := uptime.Seconds(); secs > 0 {
		snap.PacketsPerSecond = float64(received) / secs
	}
	return snap
}

// LogSummary writes a one-line counter summary to the logger.
func (s *Stats) LogSummary() {
	snap := s.Snapshot()
	slog.Info("stream stats",
		"uptime", snap.Uptime,
		"pkts_in", snap.PacketsReceived,
		"chunks", snap.PacketsReassembled,
		"pkts_per_sec", snap.PacketsPerSecond,
		"dropped_stale", snap.PacketsDroppedStale,
		"dropped_full", snap.PacketsDroppedFull,
		"underruns", snap.Underruns,
	)
}

// StartPeriodicLog logs a summary every interval until done closes.
func (s *Stats) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.LogSummary()
			}
		}
	}()
}

// statsCollector exposes the counters in Prometheus exposition format.
// Scrapes read the atomics directly; nothing in the data path is touched.
type statsCollector struct {
	stats *Stats

	received    *prometheus.Desc
	reassembled *prometheus.Desc
	stale       *prometheus.Desc
	full        *prometheus.Desc
	malformed   *prometheus.Desc
	filtered    *prometheus.Desc
	badIndex    *prometheus.Desc
	underruns   *prometheus.Desc
	evictions   *prometheus.Desc
	silent      *prometheus.Desc
	uptime      *prometheus.Desc
}

// Collector returns a prometheus.Collector backed by these counters.
func (s *Stats) Collector() prometheus.Collector {
	return &statsCollector{
		stats: s,
		received: prometheus.NewDesc("bch_packets_received_total",
			"Datagrams accepted by ingress.", nil, nil),
		reassembled: prometheus.NewDesc("bch_chunks_reassembled_total",
			"Audio chunks produced.", nil, nil),
		stale: prometheus.NewDesc("bch_packets_dropped_stale_total",
			"Pending reassembly entries evicted as stale.", nil, nil),
		full: prometheus.NewDesc("bch_packets_dropped_full_total",
			"Chunks discarded because the jitter buffer was full.", nil, nil),
		malformed: prometheus.NewDesc("bch_packets_dropped_malformed_total",
			"Datagrams shorter than the framing header.", nil, nil),
		filtered: prometheus.NewDesc("bch_packets_dropped_filtered_total",
			"Datagrams dropped by the source filter.", nil, nil),
		badIndex: prometheus.NewDesc("bch_packets_dropped_bad_index_total",
			"Fragments with an out-of-range chunk index.", nil, nil),
		underruns: prometheus.NewDesc("bch_underruns_total",
			"Playback ticks with no chunk available.", nil, nil),
		evictions: prometheus.NewDesc("bch_overflow_evictions_total",
			"Oldest chunks evicted on jitter buffer overflow.", nil, nil),
		silent: prometheus.NewDesc("bch_silent_chunks_total",
			"Chunks whose RMS level sat below the silence floor.", nil, nil),
		uptime: prometheus.NewDesc("bch_stream_uptime_seconds",
			"Seconds since the pipeline started.", nil, nil),
	}
}

func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.received
	ch <- c.reassembled
	ch <- c.stale
	ch <- c.full
	ch <- c.malformed
	ch <- c.filtered
	ch <- c.badIndex
	ch <- c.underruns
	ch <- c.evictions
	ch <- c.silent
	ch <- c.uptime
}

func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.received, c.stats.PacketsReceived.Load())
	counter(c.reassembled, c.stats.PacketsReassembled.Load())
	counter(c.stale, c.stats.PacketsDroppedStale.Load())
	counter(c.full, c.stats.PacketsDroppedFull.Load())
	counter(c.malformed, c.stats.PacketsDroppedMalformed.Load())
	counter(c.filtered, c.stats.PacketsDroppedFiltered.Load())
	counter(c.badIndex, c.stats.PacketsDroppedBadIndex.Load())
	counter(c.underruns, c.stats.Underruns.Load())
	counter(c.evictions, c.stats.OverflowEvictions.Load())
	counter(c.silent, c.stats.SilentChunks.Load())
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue,
		time.Since(c.stats.startTime).Seconds())
}
