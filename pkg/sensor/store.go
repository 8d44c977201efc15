package sensor

import (
	"context"
	"sort"
	"sync"
)

// Store persists device readings. Implementations include the default
// SQLite store and an in-memory store for tests.
type Store interface {
	// SaveReading records one reading.
	SaveReading(ctx context.Context, r *Reading) error
	// LatestReadings returns the most recent reading per device, ordered
	// by device ID.
	LatestReadings(ctx context.Context) ([]Reading, error)
	// History returns up to limit most-recent readings for one device,
	// newest first.
	History(ctx context.Context, deviceID string, limit int) ([]Reading, error)
	// Devices lists all known devices ordered by ID.
	Devices(ctx context.Context) ([]Device, error)
	Close() error
}

// MemoryStore is a Store kept entirely in memory, used in tests and when no
// database path is configured.
type MemoryStore struct {
	mu       sync.Mutex
	byDevice map[string][]Reading
	retain   int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a memory store retaining at most retain readings
// per device (0 means the default of 1000).
func NewMemoryStore(retain int) *MemoryStore {
	if retain <= 0 {
		retain = 1000
	}
	return &MemoryStore{byDevice: make(map[string][]Reading), retain: retain}
}

func (s *MemoryStore) SaveReading(_ context.Context, r *Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := append(s.byDevice[r.DeviceID], *r)
	if len(rs) > s.retain {
		rs = rs[len(rs)-s.retain:]
	}
	s.byDevice[r.DeviceID] = rs
	return nil
}

func (s *MemoryStore) LatestReadings(_ context.Context) ([]Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Reading, 0, len(s.byDevice))
	for _, rs := range s.byDevice {
		out = append(out, rs[len(rs)-1])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (s *MemoryStore) History(_ context.Context, deviceID string, limit int) ([]Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rs := s.byDevice[deviceID]
	if limit <= 0 || limit > len(rs) {
		limit = len(rs)
	}
	out := make([]Reading, 0, limit)
	for i := len(rs) - 1; i >= len(rs)-limit; i-- {
		out = append(out, rs[i])
	}
	return out, nil
}

func (s *MemoryStore) Devices(_ context.Context) ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Device, 0, len(s.byDevice))
	for id, rs := range s.byDevice {
		out = append(out, Device{
			ID:       id,
			LastSeen: rs[len(rs)-1].ReceivedAt,
			Readings: int64(len(rs)),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
