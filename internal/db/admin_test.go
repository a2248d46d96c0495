package db

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/tfluna/internal/testutil"
)

func adminRequest(path string) *http.Request {
	return testutil.LocalRequest(http.MethodGet, path, nil)
}

func TestAttachAdminRoutes(t *testing.T) {
	d, _ := newTestDB(t)
	s, err := d.CreateSession("/dev/ttyUSB0", 115200)
	require.NoError(t, err)
	require.NoError(t, d.RecordReading(s.ID, reading(150, 30)))

	mux := http.NewServeMux()
	require.NoError(t, d.AttachAdminRoutes(mux))

	t.Run("sessions", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, adminRequest("/debug/sessions?limit=5"))
		require.Equal(t, http.StatusOK, rec.Code)

		var sessions []Session
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
		require.Len(t, sessions, 1)
		assert.Equal(t, s.ID, sessions[0].ID)
	})

	t.Run("sessions bad limit", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, adminRequest("/debug/sessions?limit=-1"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("session stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, adminRequest("/debug/session-stats?id="+s.ID))
		require.Equal(t, http.StatusOK, rec.Code)

		var st struct {
			Frames         int
			MeanDistanceCM float64
			ErrorRate      float64
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
		assert.Equal(t, 1, st.Frames)
		assert.InDelta(t, 150, st.MeanDistanceCM, 1e-9)
		assert.Zero(t, st.ErrorRate)
	})

	t.Run("session stats unknown", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, adminRequest("/debug/session-stats?id=nope"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("session chart", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, adminRequest("/debug/session-chart?id="+s.ID))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "echarts")
		assert.Contains(t, rec.Body.String(), "distance_cm")
	})

	t.Run("session histogram", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, adminRequest("/debug/session-histogram?id="+s.ID))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))
	})

	t.Run("chart errors", func(t *testing.T) {
		empty, err := d.CreateSession("/dev/ttyUSB1", 115200)
		require.NoError(t, err)
		require.NoError(t, d.RecordReading(empty.ID, corrupted(10)))

		for path, want := range map[string]int{
			"/debug/session-chart":                    http.StatusBadRequest,
			"/debug/session-chart?id=nope":            http.StatusNotFound,
			"/debug/session-chart?id=" + empty.ID:     http.StatusNotFound,
			"/debug/session-histogram?id=nope":        http.StatusNotFound,
			"/debug/session-histogram?id=" + empty.ID: http.StatusNotFound,
		} {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, adminRequest(path))
			assert.Equal(t, want, rec.Code, path)
		}
	})

	t.Run("backup", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, adminRequest("/debug/backup"))
		require.Equal(t, http.StatusOK, rec.Code)

		zr, err := gzip.NewReader(rec.Body)
		require.NoError(t, err)
		raw, err := io.ReadAll(zr)
		require.NoError(t, err)
		assert.Equal(t, "SQLite format 3\x00", string(raw[:16]))
	})
}
