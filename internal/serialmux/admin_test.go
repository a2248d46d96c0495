package serialmux

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/tfluna/internal/luna"
	"github.com/banshee-data/tfluna/internal/testutil"
)

func adminMux[T SerialPorter](mux *SerialMux[T]) *http.ServeMux {
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)
	return httpMux
}

func TestAdminRoutes_SendCommandAPI(t *testing.T) {
	port := idlePort()
	port.Responder = deviceResponder
	mux := NewSerialMux(port)
	startMonitor(t, mux)
	httpMux := adminMux(mux)

	tests := []struct {
		name           string
		method         string
		form           url.Values
		expectedStatus int
		checkBody      func(t *testing.T, body string)
	}{
		{
			name:           "version query",
			method:         http.MethodPost,
			form:           url.Values{"command": {"GetVersion"}},
			expectedStatus: http.StatusOK,
			checkBody: func(t *testing.T, body string) {
				var res CommandResult
				if err := json.Unmarshal([]byte(body), &res); err != nil {
					t.Fatalf("invalid JSON %q: %v", body, err)
				}
				want := CommandResult{Command: "GetVersion", Request: "5a04015f", Data: "030201", Version: "v1.2.3"}
				if res != want {
					t.Errorf("result = %+v, want %+v", res, want)
				}
			},
		},
		{
			name:           "sample frequency with params",
			method:         http.MethodPost,
			form:           url.Values{"command": {"samplefreq"}, "params": {"0a 00"}},
			expectedStatus: http.StatusOK,
			checkBody: func(t *testing.T, body string) {
				var res CommandResult
				if err := json.Unmarshal([]byte(body), &res); err != nil {
					t.Fatalf("invalid JSON %q: %v", body, err)
				}
				want := CommandResult{Command: "SampleFreq", Request: "5a06030a006d", Data: ""}
				if res != want {
					t.Errorf("result = %+v, want %+v", res, want)
				}
			},
		},
		{
			name:           "missing command",
			method:         http.MethodPost,
			form:           url.Values{"command": {"  "}},
			expectedStatus: http.StatusBadRequest,
			checkBody: func(t *testing.T, body string) {
				if !strings.Contains(body, "Missing command") {
					t.Errorf("Expected 'Missing command' error, got: %s", body)
				}
			},
		},
		{
			name:           "unknown command",
			method:         http.MethodPost,
			form:           url.Values{"command": {"SampleTrig"}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid params",
			method:         http.MethodPost,
			form:           url.Values{"command": {"SampleFreq"}, "params": {"zz"}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "GET method not allowed",
			method:         http.MethodGet,
			expectedStatus: http.StatusMethodNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body io.Reader
			if tt.form != nil {
				body = strings.NewReader(tt.form.Encode())
			}
			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, testutil.LocalRequest(tt.method, "/debug/send-command-api", body))

			testutil.AssertStatusCode(t, rec.Code, tt.expectedStatus)
			if tt.checkBody != nil {
				tt.checkBody(t, rec.Body.String())
			}
		})
	}
}

func TestAdminRoutes_SendCommandAPI_DeviceSilent(t *testing.T) {
	mux := NewSerialMux(idlePort())
	startMonitor(t, mux)

	rec := httptest.NewRecorder()
	form := url.Values{"command": {"SoftReset"}}
	adminMux(mux).ServeHTTP(rec, testutil.LocalRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader(form.Encode())))

	testutil.AssertStatusCode(t, rec.Code, http.StatusBadGateway)
	if !strings.Contains(rec.Body.String(), "serial timeout") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestAdminRoutes_SendCommandPage(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	rec := httptest.NewRecorder()
	adminMux(mux).ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, "/debug/send-command", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	for _, want := range []string{"GetVersion", "SampleFreq", "SoftReset", "tail.js"} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestAdminRoutes_TailJS(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	rec := httptest.NewRecorder()
	adminMux(mux).ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, "/debug/tail.js", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/javascript" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "EventSource") {
		t.Error("tail.js not served")
	}
}

func TestAdminRoutes_Status(t *testing.T) {
	port := idlePort()
	port.Responder = deviceResponder
	mux := NewSerialMux(port)
	startMonitor(t, mux)
	if err := mux.Do(context.Background(), func(c *luna.Client) error { return c.SetSampleDivisor(5) }); err != nil {
		t.Fatalf("SetSampleDivisor error = %v", err)
	}

	rec := httptest.NewRecorder()
	adminMux(mux).ServeHTTP(rec, testutil.LocalRequest(http.MethodGet, "/debug/luna", nil))

	var st Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	if st.SampleFrequency != 100 || st.TriggerMode {
		t.Errorf("status = %+v", st)
	}
}

func TestAdminRoutes_Tail(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	httpMux := adminMux(mux)

	ctx, cancel := context.WithCancel(context.Background())
	req := testutil.LocalRequest(http.MethodGet, "/debug/tail", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		httpMux.ServeHTTP(rec, req)
		close(done)
	}()

	waitFor(t, "tail subscription", func() bool { return subscriberCount(mux) == 1 })
	r, err := luna.DecodeTelemetry(frame(77))
	if err != nil {
		t.Fatal(err)
	}
	mux.publish(r)
	waitFor(t, "tail to drain", func() bool {
		mux.subscriberMu.Lock()
		defer mux.subscriberMu.Unlock()
		for _, ch := range mux.subscribers {
			return len(ch) == 0
		}
		return false
	})
	// Give the handler a moment to write the event.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tail handler did not exit")
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, ": ping\n\n") {
		t.Errorf("missing initial ping: %q", body)
	}
	if !strings.Contains(body, `data: {"distance_cm":77,"strength":500,"temperature_c":25,`) {
		t.Errorf("missing reading event: %q", body)
	}
	if subscriberCount(mux) != 0 {
		t.Error("tail should unsubscribe on disconnect")
	}
}

func TestAdminRoutes_Tail_MethodNotAllowed(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	rec := httptest.NewRecorder()
	adminMux(mux).ServeHTTP(rec, testutil.LocalRequest(http.MethodPost, "/debug/tail", nil))

	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestAdminRoutes_TailClosedOnMuxClose(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	httpMux := adminMux(mux)

	done := make(chan struct{})
	go func() {
		httpMux.ServeHTTP(httptest.NewRecorder(), testutil.LocalRequest(http.MethodGet, "/debug/tail", nil))
		close(done)
	}()
	waitFor(t, "tail subscription", func() bool { return subscriberCount(mux) == 1 })
	mux.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tail handler did not exit after Close")
	}
}
