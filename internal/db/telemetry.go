package db

import (
	"fmt"
	"time"

	"github.com/banshee-data/tfluna/internal/luna"
)

// TelemetryRecord is a stored reading.
type TelemetryRecord struct {
	Reading    luna.Reading
	RecordedAt time.Time
}

// RecordReading stores one decoded frame, including frames whose checksum
// did not match.
func (db *DB) RecordReading(sessionID string, r luna.Reading) error {
	_, err := db.Exec(`
		INSERT INTO telemetry (session_id, distance_cm, strength, raw_temperature, checksum, checksum_ok, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, r.Frame.Distance, r.Frame.Strength, r.Frame.RawTemperature,
		r.Frame.Checksum, r.OK(), db.clock.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record reading: %w", err)
	}
	return nil
}

// RecentReadings returns up to limit readings for a session, newest first.
func (db *DB) RecentReadings(sessionID string, limit int) ([]TelemetryRecord, error) {
	rows, err := db.Query(`
		SELECT distance_cm, strength, raw_temperature, checksum, recorded_at
		FROM telemetry
		WHERE session_id = ?
		ORDER BY recorded_at DESC, telemetry_id DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TelemetryRecord
	for rows.Next() {
		var (
			f        luna.TelemetryFrame
			recorded int64
		)
		if err := rows.Scan(&f.Distance, &f.Strength, &f.RawTemperature, &f.Checksum, &recorded); err != nil {
			return nil, err
		}
		// EncodeTelemetry recomputes the checksum the frame should have had.
		reading := luna.Reading{Frame: f, Expected: luna.EncodeTelemetry(f)[8]}
		if reading.Expected != f.Checksum {
			reading.Status = luna.StatusChecksumError
		}
		records = append(records, TelemetryRecord{Reading: reading, RecordedAt: time.Unix(0, recorded).UTC()})
	}
	return records, rows.Err()
}

// CommandRecord is a stored command/response cycle.
type CommandRecord struct {
	Command  luna.CommandID
	Request  []byte
	Response []byte
	Error    string
	SentAt   time.Time
}

// RecordCommand stores a command cycle. resp may be nil when the cycle
// failed.
func (db *DB) RecordCommand(sessionID string, id luna.CommandID, request []byte, resp *luna.Response, cmdErr error) error {
	var response []byte
	if resp != nil {
		response = resp.Data
	}
	var errText string
	if cmdErr != nil {
		errText = cmdErr.Error()
	}
	_, err := db.Exec(`
		INSERT INTO commands (session_id, command_id, request, response, error, sent_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, uint8(id), request, response, errText, db.clock.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record command: %w", err)
	}
	return nil
}

// Commands returns the command cycles for a session in the order sent.
func (db *DB) Commands(sessionID string) ([]CommandRecord, error) {
	rows, err := db.Query(`
		SELECT command_id, request, response, error, sent_at
		FROM commands
		WHERE session_id = ?
		ORDER BY sent_at, command_log_id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CommandRecord
	for rows.Next() {
		var (
			c    CommandRecord
			id   uint8
			sent int64
		)
		if err := rows.Scan(&id, &c.Request, &c.Response, &c.Error, &sent); err != nil {
			return nil, err
		}
		c.Command = luna.CommandID(id)
		c.SentAt = time.Unix(0, sent).UTC()
		records = append(records, c)
	}
	return records, rows.Err()
}
