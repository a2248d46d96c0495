package serialmux

import (
	"bytes"
	"context"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/tfluna/internal/httputil"
	"github.com/banshee-data/tfluna/internal/luna"
)

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// ReadingJSON is the wire form of a reading on the tail stream.
type ReadingJSON struct {
	DistanceCM   uint16  `json:"distance_cm"`
	Strength     uint16  `json:"strength"`
	TemperatureC float64 `json:"temperature_c"`
	Checksum     byte    `json:"checksum"`
	Expected     byte    `json:"expected"`
	Status       string  `json:"status"`
}

// NewReadingJSON converts a decoded reading for JSON output.
func NewReadingJSON(r luna.Reading) ReadingJSON {
	return ReadingJSON{
		DistanceCM:   r.Frame.Distance,
		Strength:     r.Frame.Strength,
		TemperatureC: r.Frame.TemperatureCelsius(),
		Checksum:     r.Frame.Checksum,
		Expected:     r.Expected,
		Status:       r.Status.String(),
	}
}

// CommandResult is returned by the send-command-api endpoint.
type CommandResult struct {
	Command string `json:"command"`
	Request string `json:"request"`
	Data    string `json:"data"`
	Version string `json:"version,omitempty"`
}

// Status is returned by the luna endpoint.
type Status struct {
	SampleFrequency uint16 `json:"sample_frequency"`
	TriggerMode     bool   `json:"trigger_mode"`
	DiscardedBytes  uint64 `json:"discarded_bytes"`
	Subscribers     int    `json:"subscribers"`
}

// Status reports the configuration last applied through this mux and decoder
// counters. It runs on the monitor goroutine, so Monitor must be running.
func (s *SerialMux[T]) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.Do(ctx, func(c *luna.Client) error {
		st.SampleFrequency = c.SampleFrequency()
		st.TriggerMode = c.TriggerMode()
		st.DiscardedBytes = s.decoder.Discarded()
		return nil
	})
	s.subscriberMu.Lock()
	st.Subscribers = len(s.subscribers)
	s.subscriberMu.Unlock()
	return st, err
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Basic command / live tail monitor interface using the below two API endpoints.
	debug.HandleFunc("send-command", "send a command to the sensor", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		data := struct{ Commands []luna.CommandID }{
			Commands: []luna.CommandID{luna.GetVersion, luna.SampleFreq, luna.SoftReset},
		}
		if err := sendCommandTemplate.Execute(buf, data); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	debug.HandleFunc("luna", "sensor status", func(w http.ResponseWriter, r *http.Request) {
		st, err := s.Status(r.Context())
		if err != nil {
			httputil.WriteJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		httputil.WriteJSONOK(w, st)
	})

	// API endpoint to run a command/response cycle
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		name := strings.TrimSpace(r.FormValue("command"))
		if name == "" {
			httputil.BadRequest(w, "Missing command")
			return
		}
		id, err := luna.ParseCommandName(name)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		params, err := hex.DecodeString(strings.ReplaceAll(r.FormValue("params"), " ", ""))
		if err != nil {
			httputil.BadRequest(w, fmt.Sprintf("Invalid params: %v", err))
			return
		}

		result := CommandResult{Command: id.String()}
		err = s.Do(r.Context(), func(c *luna.Client) error {
			if frame, err := luna.BuildCommand(id, params); err == nil {
				result.Request = hex.EncodeToString(frame)
			}
			resp, err := c.Request(id, params)
			if err != nil {
				return err
			}
			result.Data = hex.EncodeToString(resp.Data)
			if id == luna.GetVersion {
				if v, err := luna.ParseVersion(resp.Data); err == nil {
					result.Version = v.String()
				}
			}
			return nil
		})
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, luna.ErrFrameTooLong) {
				status = http.StatusBadRequest
			}
			httputil.WriteJSONError(w, status, fmt.Sprintf("Command %s failed: %v", id, err))
			return
		}
		httputil.WriteJSONOK(w, result)
	})

	// API endpoint to issue Server-Side Events (SSE) for each decoded frame.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case reading, ok := <-c:
				if !ok {
					// Channel closed, exit gracefully
					return
				}
				payload, err := json.Marshal(NewReadingJSON(reading))
				if err != nil {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")

		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})
}
