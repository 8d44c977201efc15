package sensor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// retainPerDevice caps how many readings each device keeps in the database;
// older rows are reclaimed on insert.
const retainPerDevice = 10000

// SQLStore is the default SQLite-backed Store.
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore opens (or creates) a SQLite database and runs migrations.
func NewSQLStore(dbPath string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sensor: open DB: %w", err)
	}

	ctx := context.Background()

	// Enable WAL mode for better concurrent read performance
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sensor: set WAL: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sensor: set busy_timeout: %w", err)
	}

	s := &SQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sensor: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS readings (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id           TEXT    NOT NULL,
		inside_temperature  REAL    NOT NULL DEFAULT 0,
		outside_temperature REAL    NOT NULL DEFAULT 0,
		inside_humidity     REAL    NOT NULL DEFAULT 0,
		outside_humidity    REAL    NOT NULL DEFAULT 0,
		tof_distance        REAL    NOT NULL DEFAULT 0,
		door_closed         INTEGER NOT NULL DEFAULT 0,
		received_at         TEXT    NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_readings_device ON readings(device_id, id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	return nil
}

func (s *SQLStore) SaveReading(ctx context.Context, r *Reading) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO readings (
			device_id,
			inside_temperature, outside_temperature,
			inside_humidity, outside_humidity,
			tof_distance, door_closed, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.DeviceID,
		r.InsideTemperature, r.OutsideTemperature,
		r.InsideHumidity, r.OutsideHumidity,
		r.TOFDistance, boolToInt(r.DoorClosed),
		r.ReceivedAt.UTC().Format(dbTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("sensor: insert reading: %w", err)
	}

	// Reclaim rows past the per-device cap.
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM readings
		WHERE device_id = ? AND id NOT IN (
			SELECT id FROM readings WHERE device_id = ?
			ORDER BY id DESC LIMIT ?
		)`, r.DeviceID, r.DeviceID, retainPerDevice)
	if err != nil {
		return fmt.Errorf("sensor: prune readings: %w", err)
	}
	return nil
}

func (s *SQLStore) LatestReadings(ctx context.Context) ([]Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id,
		       inside_temperature, outside_temperature,
		       inside_humidity, outside_humidity,
		       tof_distance, door_closed, received_at
		FROM readings
		WHERE id IN (SELECT MAX(id) FROM readings GROUP BY device_id)
		ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("sensor: query latest readings: %w", err)
	}
	defer rows.Close()
	return scanReadings(rows)
}

func (s *SQLStore) History(ctx context.Context, deviceID string, limit int) ([]Reading, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id,
		       inside_temperature, outside_temperature,
		       inside_humidity, outside_humidity,
		       tof_distance, door_closed, received_at
		FROM readings
		WHERE device_id = ?
		ORDER BY id DESC LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("sensor: query history: %w", err)
	}
	defer rows.Close()
	return scanReadings(rows)
}

func (s *SQLStore) Devices(ctx context.Context) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_id, COUNT(*), MAX(received_at)
		FROM readings
		GROUP BY device_id
		ORDER BY device_id`)
	if err != nil {
		return nil, fmt.Errorf("sensor: query devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		var d Device
		var lastSeen string
		if err := rows.Scan(&d.ID, &d.Readings, &lastSeen); err != nil {
			return nil, fmt.Errorf("sensor: scan device: %w", err)
		}
		if t, err := time.Parse(dbTimeLayout, lastSeen); err == nil {
			d.LastSeen = t.UTC()
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func scanReadings(rows *sql.Rows) ([]Reading, error) {
	var readings []Reading
	for rows.Next() {
		var r Reading
		var doorClosed int
		var receivedAt string
		err := rows.Scan(
			&r.DeviceID,
			&r.InsideTemperature, &r.OutsideTemperature,
			&r.InsideHumidity, &r.OutsideHumidity,
			&r.TOFDistance, &doorClosed, &receivedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("sensor: scan reading: %w", err)
		}
		r.DoorClosed = doorClosed != 0
		if t, err := time.Parse(dbTimeLayout, receivedAt); err == nil {
			r.ReceivedAt = t.UTC()
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
