package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("session not found")

// Session is one capture run against a single port.
type Session struct {
	ID        string
	Port      string
	BaudRate  int
	Firmware  string
	StartedAt time.Time
}

// CreateSession starts a new capture session.
func (db *DB) CreateSession(port string, baudRate int) (Session, error) {
	s := Session{
		ID:        uuid.NewString(),
		Port:      port,
		BaudRate:  baudRate,
		StartedAt: db.clock.Now().UTC(),
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, port, baud_rate, started_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.Port, s.BaudRate, s.StartedAt.UnixNano(),
	)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}

// SetSessionFirmware records the version string reported by the device.
func (db *DB) SetSessionFirmware(sessionID, firmware string) error {
	res, err := db.Exec(`UPDATE sessions SET firmware = ? WHERE session_id = ?`, firmware, sessionID)
	if err != nil {
		return fmt.Errorf("set firmware: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

// Session loads a single session.
func (db *DB) Session(sessionID string) (Session, error) {
	var (
		s       Session
		started int64
	)
	err := db.QueryRow(
		`SELECT session_id, port, baud_rate, firmware, started_at FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&s.ID, &s.Port, &s.BaudRate, &s.Firmware, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return Session{}, err
	}
	s.StartedAt = time.Unix(0, started).UTC()
	return s, nil
}

// Sessions lists the most recent sessions first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	rows, err := db.Query(
		`SELECT session_id, port, baud_rate, firmware, started_at FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s       Session
			started int64
		)
		if err := rows.Scan(&s.ID, &s.Port, &s.BaudRate, &s.Firmware, &started); err != nil {
			return nil, err
		}
		s.StartedAt = time.Unix(0, started).UTC()
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
