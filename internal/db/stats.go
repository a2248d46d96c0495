package db

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/tfluna/internal/luna"
)

// SessionStats summarises the telemetry of a session. Distance and
// temperature figures only include frames whose checksum matched.
type SessionStats struct {
	SessionID      string
	Frames         int
	ChecksumErrors int

	MeanDistanceCM   float64
	StdDevDistanceCM float64
	MedianDistanceCM float64
	MinDistanceCM    float64
	MaxDistanceCM    float64
	MeanStrength     float64
	MeanTemperatureC float64
}

// ErrorRate is the fraction of frames that failed the checksum.
func (s SessionStats) ErrorRate() float64 {
	if s.Frames == 0 {
		return 0
	}
	return float64(s.ChecksumErrors) / float64(s.Frames)
}

// SessionStats computes summary statistics for a session.
func (db *DB) SessionStats(sessionID string) (SessionStats, error) {
	if _, err := db.Session(sessionID); err != nil {
		return SessionStats{}, err
	}

	rows, err := db.Query(`
		SELECT distance_cm, strength, raw_temperature, checksum_ok
		FROM telemetry
		WHERE session_id = ?`, sessionID)
	if err != nil {
		return SessionStats{}, err
	}
	defer rows.Close()

	st := SessionStats{SessionID: sessionID}
	var distances, strengths, temps []float64
	for rows.Next() {
		var (
			f  luna.TelemetryFrame
			ok bool
		)
		if err := rows.Scan(&f.Distance, &f.Strength, &f.RawTemperature, &ok); err != nil {
			return SessionStats{}, fmt.Errorf("scan telemetry: %w", err)
		}
		st.Frames++
		if !ok {
			st.ChecksumErrors++
			continue
		}
		distances = append(distances, float64(f.Distance))
		strengths = append(strengths, float64(f.Strength))
		temps = append(temps, f.TemperatureCelsius())
	}
	if err := rows.Err(); err != nil {
		return SessionStats{}, err
	}
	if len(distances) == 0 {
		return st, nil
	}

	st.MeanDistanceCM = stat.Mean(distances, nil)
	if len(distances) > 1 {
		st.StdDevDistanceCM = stat.StdDev(distances, nil)
	}
	st.MinDistanceCM = floats.Min(distances)
	st.MaxDistanceCM = floats.Max(distances)
	st.MeanStrength = stat.Mean(strengths, nil)
	st.MeanTemperatureC = stat.Mean(temps, nil)

	sort.Float64s(distances)
	st.MedianDistanceCM = stat.Quantile(0.5, stat.Empirical, distances, nil)
	if math.IsNaN(st.StdDevDistanceCM) {
		st.StdDevDistanceCM = 0
	}
	return st, nil
}
