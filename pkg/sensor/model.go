// Package sensor ingests and stores the JSON environment readings the
// cabinet devices interleave with their audio stream: temperature and
// humidity inside and outside the cabinet, plus a time-of-flight distance
// used to derive the door state.
package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// doorClosedThreshold is the time-of-flight distance below which the door
// counts as closed, calibrated against the mounted sensor position.
const doorClosedThreshold = -450

// ErrNotSensorReading reports a JSON datagram that is not a device reading.
var ErrNotSensorReading = errors.New("sensor: not a sensor reading")

// Reading is one environment sample from a cabinet device.
type Reading struct {
	DeviceID string `json:"device_id"`

	InsideTemperature  float64 `json:"inside_temperature"`
	OutsideTemperature float64 `json:"outside_temperature"`
	InsideHumidity     float64 `json:"inside_humidity"`
	OutsideHumidity    float64 `json:"outside_humidity"`

	TOFDistance float64 `json:"tof_distance"`
	DoorClosed  bool    `json:"door_closed"`

	ReceivedAt time.Time `json:"received_at"`
}

// wireReading is the on-wire STM32 JSON layout. The firmware ships with a
// misspelled outside-humidity key; both spellings are accepted, the correct
// one winning when both are present.
type wireReading struct {
	InsideTemperature  *float64 `json:"Inside_temperature"`
	OutsideTemperature float64  `json:"Outside_temperature"`
	InsideHumidity     float64  `json:"Inside_humidity"`
	OutsideHumidity    *float64 `json:"Outside_humidity"`
	OutsideHumidityAlt *float64 `json:"outisde_humidity"`
	TimeOfFlight       float64  `json:"Time_of_flight"`
}

// ParseDatagram decodes one device JSON datagram into a Reading. The device
// is identified by its source IP. Valid JSON lacking the reading keys fails
// with ErrNotSensorReading.
func ParseDatagram(data []byte, src net.IP) (*Reading, error) {
	var w wireReading
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("sensor: decode reading: %w", err)
	}
	if w.InsideTemperature == nil {
		return nil, ErrNotSensorReading
	}

	r := &Reading{
		DeviceID:           DeviceIDFor(src),
		InsideTemperature:  *w.InsideTemperature,
		OutsideTemperature: w.OutsideTemperature,
		InsideHumidity:     w.InsideHumidity,
		TOFDistance:        w.TimeOfFlight,
		DoorClosed:         w.TimeOfFlight < doorClosedThreshold,
		ReceivedAt:         time.Now().UTC(),
	}
	switch {
	case w.OutsideHumidity != nil:
		r.OutsideHumidity = *w.OutsideHumidity
	case w.OutsideHumidityAlt != nil:
		r.OutsideHumidity = *w.OutsideHumidityAlt
	}
	return r, nil
}

// DeviceIDFor derives the stable device identifier for a sender address.
func DeviceIDFor(ip net.IP) string {
	if ip == nil {
		return "device_unknown"
	}
	return "device_" + ip.String()
}

// Device summarizes one known sender.
type Device struct {
	ID       string    `json:"id"`
	LastSeen time.Time `json:"last_seen"`
	Readings int64     `json:"readings"`
}
