package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HansOlavAarvik/BCH-server/pkg/receiver"
	"github.com/HansOlavAarvik/BCH-server/pkg/sensor"
)

// newMux builds the status API handler.
func (s *Server) newMux() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		s.pipeline.Stats().Collector(),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "bch_jitter_buffer_occupancy",
			Help: "Chunks currently held in the jitter buffer.",
		}, func() float64 { return float64(s.pipeline.Occupancy()) }),
	)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("GET /api/stream/stats", s.handleStreamStats)
	mux.HandleFunc("GET /api/sensors/latest", s.handleSensorsLatest)
	mux.HandleFunc("GET /api/sensors/history", s.handleSensorHistory)
	mux.HandleFunc("GET /api/devices", s.handleDevices)
	return mux
}

func (s *Server) handleStreamStats(w http.ResponseWriter, _ *http.Request) {
	snap := s.pipeline.Stats().Snapshot()
	writeJSON(w, struct {
		receiver.Snapshot
		JitterOccupancy int `json:"jitter_occupancy"`
	}{snap, s.pipeline.Occupancy()})
}

func (s *Server) handleSensorsLatest(w http.ResponseWriter, r *http.Request) {
	readings, err := s.store.LatestReadings(r.Context())
	if err != nil {
		slog.Error("latest readings query failed", "err", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if readings == nil {
		readings = []sensor.Reading{}
	}
	writeJSON(w, readings)
}

func (s *Server) handleSensorHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device")
	if deviceID == "" {
		http.Error(w, "missing device parameter", http.StatusBadRequest)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	readings, err := s.store.History(r.Context(), deviceID, limit)
	if err != nil {
		slog.Error("history query failed", "device", deviceID, "err", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if readings == nil {
		readings = []sensor.Reading{}
	}
	writeJSON(w, readings)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.Devices(r.Context())
	if err != nil {
		slog.Error("devices query failed", "err", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if devices == nil {
		devices = []sensor.Device{}
	}
	writeJSON(w, devices)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}
