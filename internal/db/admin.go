package db

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/banshee-data/tfluna/internal/httputil"
	"github.com/banshee-data/tfluna/internal/monitoring"
)

// AttachAdminRoutes mounts the SQL console, a backup download, session
// summaries and session charts under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://tfluna.db", db.DB, &tailsql.DBOptions{
		Label: "TF-Luna DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("sessions", "recent capture sessions", func(w http.ResponseWriter, r *http.Request) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				httputil.BadRequest(w, "Invalid limit")
				return
			}
			limit = n
		}
		sessions, err := db.Sessions(limit)
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, sessions)
	})

	debug.HandleSilentFunc("session-stats", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		if id == "" {
			httputil.BadRequest(w, "Missing id")
			return
		}
		st, err := db.SessionStats(id)
		if err != nil {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, struct {
			SessionStats
			ErrorRate float64
		}{st, st.ErrorRate()})
	})

	debug.HandleSilentFunc("session-chart", func(w http.ResponseWriter, r *http.Request) {
		db.serveChart(w, r, "text/html; charset=utf-8", db.RenderDistanceChart)
	})

	debug.HandleSilentFunc("session-histogram", func(w http.ResponseWriter, r *http.Request) {
		db.serveChart(w, r, "image/png", db.RenderDistanceHistogram)
	})

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		backupPath := filepath.Join(os.TempDir(), fmt.Sprintf("tfluna-backup-%d.db", db.clock.Now().UnixNano()))
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to create backup: %v", err))
			return
		}
		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("Failed to remove backup file: %v", err)
			}
		}()

		backupFile, err := os.Open(backupPath)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to open backup file: %v", err))
			return
		}
		defer backupFile.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", filepath.Base(backupPath)))
		w.Header().Set("Content-Type", "application/gzip")

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			monitoring.Logf("Failed to write backup file: %v", err)
		}
	}))
	return nil
}

// serveChart renders into a buffer so failures can still set the status.
func (db *DB) serveChart(w http.ResponseWriter, r *http.Request, contentType string, render func(io.Writer, string) error) {
	id := r.URL.Query().Get("id")
	if id == "" {
		httputil.BadRequest(w, "Missing id")
		return
	}
	var buf bytes.Buffer
	if err := render(&buf, id); err != nil {
		if errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrNoReadings) {
			httputil.NotFound(w, err.Error())
			return
		}
		httputil.InternalServerError(w, fmt.Sprintf("Failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(buf.Bytes())
}
