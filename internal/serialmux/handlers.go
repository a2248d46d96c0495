package serialmux

import (
	"context"
	"fmt"

	"github.com/banshee-data/tfluna/internal/db"
	"github.com/banshee-data/tfluna/internal/luna"
	"github.com/banshee-data/tfluna/internal/monitoring"
)

// HandleReading stores one reading against a session.
func HandleReading(d *db.DB, sessionID string, r luna.Reading) error {
	if !r.OK() {
		monitoring.Logf("checksum mismatch: %s", r)
	}
	if err := d.RecordReading(sessionID, r); err != nil {
		return fmt.Errorf("failed to handle reading: %w", err)
	}
	return nil
}

// CommandRecorder returns an OnCommand callback that stores every command
// cycle against a session.
func CommandRecorder(d *db.DB, sessionID string) func(luna.CommandID, []byte, *luna.Response, error) {
	return func(id luna.CommandID, request []byte, resp *luna.Response, cmdErr error) {
		if err := d.RecordCommand(sessionID, id, request, resp, cmdErr); err != nil {
			monitoring.Logf("failed to record %s: %v", id, err)
		}
	}
}

// RecordReadings subscribes to mux and stores readings until ctx is done or
// the mux closes the subscription.
func RecordReadings(ctx context.Context, mux SerialMuxInterface, d *db.DB, sessionID string) error {
	id, c := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-c:
			if !ok {
				return nil
			}
			if err := HandleReading(d, sessionID, r); err != nil {
				return err
			}
		}
	}
}
