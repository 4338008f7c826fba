// Package scanstore persists published scans in SQLite.
package scanstore

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/scanlog/internal/lms"
	"github.com/banshee-data/scanlog/internal/monitoring"
)

var logf = monitoring.Tagged("ScanStore")

// Store wraps the scan database.
type Store struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the database at path and migrates it to
// the latest schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps :memory: databases consistent
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{DB: db, path: path}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// SessionInfo describes one capture or replay run.
type SessionInfo struct {
	ID             string  `json:"session_id"`
	Source         string  `json:"source"`
	StartedAt      float64 `json:"started_at"`
	Baud           int     `json:"baud"`
	MeasuringMode  int     `json:"measuring_mode"`
	MeasuringUnits int     `json:"measuring_units"`
	ScanResolution float64 `json:"scan_resolution"`
	ScanAngle      float64 `json:"scan_angle"`
	MaxDistance    float64 `json:"max_distance"`
}

// BeginSession records a new session and returns its id. An empty ID in
// info is replaced with a random UUID.
func (s *Store) BeginSession(info SessionInfo) (string, error) {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	_, err := s.Exec(`INSERT INTO capture_sessions
		(session_id, source, started_at, baud, measuring_mode, measuring_units, scan_resolution, scan_angle, max_distance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.Source, info.StartedAt, info.Baud, info.MeasuringMode, info.MeasuringUnits,
		info.ScanResolution, info.ScanAngle, info.MaxDistance)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return info.ID, nil
}

// RecordScan stores m under session.
func (s *Store) RecordScan(session string, m lms.ScanMessage) error {
	_, err := s.Exec(`INSERT INTO scans (session_id, seq, captured_at, avg_rate_hz, points, distances)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session, m.Seq, m.Timestamp, m.AvgRate, len(m.Distances), lms.JoinDistances(m.Distances, ","))
	if err != nil {
		return fmt.Errorf("insert scan %d: %w", m.Seq, err)
	}
	return nil
}

// Subscriber returns an lms.Subscriber that records into session. Errors
// are logged.
func (s *Store) Subscriber(session string) lms.Subscriber {
	return func(m lms.ScanMessage) {
		if err := s.RecordScan(session, m); err != nil {
			logf("%v", err)
		}
	}
}

// CountScans returns the number of scans stored for session.
func (s *Store) CountScans(session string) (int, error) {
	var n int
	err := s.QueryRow(`SELECT COUNT(*) FROM scans WHERE session_id = ?`, session).Scan(&n)
	return n, err
}

// LatestScans returns up to limit scans of session, newest first.
func (s *Store) LatestScans(session string, limit int) ([]lms.ScanMessage, error) {
	rows, err := s.Query(`SELECT seq, captured_at, avg_rate_hz, distances FROM scans
		WHERE session_id = ? ORDER BY seq DESC LIMIT ?`, session, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lms.ScanMessage
	for rows.Next() {
		var m lms.ScanMessage
		var distances string
		if err := rows.Scan(&m.Seq, &m.Timestamp, &m.AvgRate, &distances); err != nil {
			return nil, err
		}
		if m.Distances, err = lms.ParseDistances(distances); err != nil {
			return nil, fmt.Errorf("scan %d: %w", m.Seq, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Sessions lists every session, oldest first.
func (s *Store) Sessions() ([]SessionInfo, error) {
	rows, err := s.Query(`SELECT session_id, source, started_at, baud, measuring_mode, measuring_units,
		scan_resolution, scan_angle, max_distance FROM capture_sessions ORDER BY started_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var si SessionInfo
		if err := rows.Scan(&si.ID, &si.Source, &si.StartedAt, &si.Baud, &si.MeasuringMode,
			&si.MeasuringUnits, &si.ScanResolution, &si.ScanAngle, &si.MaxDistance); err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	return out, rows.Err()
}
