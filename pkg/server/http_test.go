package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/HansOlavAarvik/BCH-server/pkg/receiver"
	"github.com/HansOlavAarvik/BCH-server/pkg/sensor"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Stream.ListenAddr = "127.0.0.1:0"
	cfg.Sink = SinkConfig{} // discard

	pipeline, err := receiver.NewPipeline(cfg.Stream, discardSink{})
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return &Server{
		cfg:      cfg,
		pipeline: pipeline,
		store:    sensor.NewMemoryStore(0),
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t).newMux())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Errorf("GET /healthz status = %d, want 200", resp.StatusCode)
	}
}

func TestStreamStatsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.pipeline.Stats().PacketsReceived.Add(12)
	srv := httptest.NewServer(s.newMux())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/api/stream/stats")
	if err != nil {
		t.Fatalf("GET /api/stream/stats error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		PacketsReceived int64 `json:"packets_received"`
		JitterOccupancy int   `json:"jitter_occupancy"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.PacketsReceived != 12 {
		t.Errorf("packets_received = %d, want 12", body.PacketsReceived)
	}
	if body.JitterOccupancy != 0 {
		t.Errorf("jitter_occupancy = %d, want 0", body.JitterOccupancy)
	}
}

func TestSensorEndpoints(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	reading := &sensor.Reading{
		DeviceID:          "device_192.168.1.50",
		InsideTemperature: 21.5,
		OutsideHumidity:   80.0,
		TOFDistance:       -500,
		DoorClosed:        true,
		ReceivedAt:        time.Now().UTC(),
	}
	if err := s.store.SaveReading(ctx, reading); err != nil {
		t.Fatalf("SaveReading() error = %v", err)
	}

	srv := httptest.NewServer(s.newMux())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/api/sensors/latest")
	if err != nil {
		t.Fatalf("GET /api/sensors/latest error = %v", err)
	}
	defer resp.Body.Close()
	var readings []sensor.Reading
	if err := json.NewDecoder(resp.Body).Decode(&readings); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(readings) != 1 || readings[0].DeviceID != "device_192.168.1.50" {
		t.Errorf("latest readings = %+v, want the stored reading", readings)
	}
	if !readings[0].DoorClosed {
		t.Error("door_closed = false, want true")
	}

	resp, err = srv.Client().Get(srv.URL + "/api/devices")
	if err != nil {
		t.Fatalf("GET /api/devices error = %v", err)
	}
	defer resp.Body.Close()
	var devices []sensor.Device
	if err := json.NewDecoder(resp.Body).Decode(&devices); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(devices) != 1 || devices[0].Readings != 1 {
		t.Errorf("devices = %+v, want one with a single reading", devices)
	}
}

func TestSensorHistoryEndpoint(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.newMux())
	defer srv.Close()

	// Missing device parameter.
	resp, err := srv.Client().Get(srv.URL + "/api/sensors/history")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400 without device", resp.StatusCode)
	}

	resp, err = srv.Client().Get(srv.URL + "/api/sensors/history?device=device_x&limit=abc")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400 for bad limit", resp.StatusCode)
	}

	resp, err = srv.Client().Get(srv.URL + "/api/sensors/history?device=device_x")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var readings []sensor.Reading
	if err := json.NewDecoder(resp.Body).Decode(&readings); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(readings) != 0 {
		t.Errorf("history = %+v, want empty list", readings)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.pipeline.Stats().Underruns.Add(2)
	srv := httptest.NewServer(s.newMux())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	for _, want := range []string{
		"bch_underruns_total 2",
		"bch_jitter_buffer_occupancy 0",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
