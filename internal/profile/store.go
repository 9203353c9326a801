// Package profile persists per-device cooperate settings.
package profile

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS devices (
    udid            TEXT PRIMARY KEY,
    network_id      TEXT NOT NULL DEFAULT '',
    cooperate_on    INTEGER NOT NULL DEFAULT 0,
    updated_at      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_devices_network ON devices(network_id);
`

// ErrUnknownDevice is returned when no profile exists for a device.
var ErrUnknownDevice = errors.New("profile: unknown device")

// Device is one stored profile.
type Device struct {
	UdID        string
	NetworkID   string
	CooperateOn bool
	UpdatedAt   time.Time
}

// Store is the SQLite-backed device profile store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SetCooperateSwitch records the cooperate switch of a device. An empty network id
// keeps the previously stored one.
func (s *Store) SetCooperateSwitch(udid, networkID string, on bool) error {
	if udid == "" {
		return fmt.Errorf("set cooperate switch: empty udid")
	}
	_, err := s.db.Exec(`
		INSERT INTO devices (udid, network_id, cooperate_on, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(udid) DO UPDATE SET
			network_id = CASE WHEN excluded.network_id = '' THEN devices.network_id ELSE excluded.network_id END,
			cooperate_on = excluded.cooperate_on,
			updated_at = excluded.updated_at`,
		udid, networkID, on, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("set cooperate switch: %w", err)
	}
	return nil
}

// CooperateSwitchByUdID returns the stored switch of a device.
func (s *Store) CooperateSwitchByUdID(udid string) (bool, error) {
	d, err := s.scanOne(`SELECT udid, network_id, cooperate_on, updated_at FROM devices WHERE udid = ?`, udid)
	if err != nil {
		return false, err
	}
	return d.CooperateOn, nil
}

// CooperateSwitchByNetworkID returns the switch of the device last seen at networkID.
func (s *Store) CooperateSwitchByNetworkID(networkID string) (bool, error) {
	d, err := s.scanOne(`SELECT udid, network_id, cooperate_on, updated_at FROM devices
		WHERE network_id = ? ORDER BY updated_at DESC LIMIT 1`, networkID)
	if err != nil {
		return false, err
	}
	return d.CooperateOn, nil
}

// Devices lists every stored profile ordered by udid.
func (s *Store) Devices() ([]Device, error) {
	rows, err := s.db.Query(`SELECT udid, network_id, cooperate_on, updated_at FROM devices ORDER BY udid`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(sc scanner) (Device, error) {
	var d Device
	var updated int64
	if err := sc.Scan(&d.UdID, &d.NetworkID, &d.CooperateOn, &updated); err != nil {
		return Device{}, fmt.Errorf("scan device: %w", err)
	}
	d.UpdatedAt = time.Unix(0, updated)
	return d, nil
}

func (s *Store) scanOne(query string, arg string) (Device, error) {
	d, err := scanDevice(s.db.QueryRow(query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, ErrUnknownDevice
	}
	return d, err
}
