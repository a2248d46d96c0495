// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/tfluna/internal/luna"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// LocalRequest creates a test HTTP request from a loopback address, which
// tsweb.AllowDebugAccess accepts. A non-nil body is sent as a form.
func LocalRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req
}

// Frame returns the wire form of a valid telemetry frame.
func Frame(distanceCM, strength uint16, celsius int) []byte {
	return luna.EncodeTelemetry(luna.TelemetryFrame{
		Distance:       distanceCM,
		Strength:       strength,
		RawTemperature: uint16((celsius + 256) * 8),
	})
}

// CorruptFrame is Frame with the checksum byte inverted.
func CorruptFrame(distanceCM, strength uint16, celsius int) []byte {
	b := Frame(distanceCM, strength, celsius)
	b[8] ^= 0xFF
	return b
}

// Decode decodes a frame built by Frame or CorruptFrame.
func Decode(t testing.TB, b []byte) luna.Reading {
	t.Helper()
	r, err := luna.DecodeTelemetry(b)
	if err != nil {
		t.Fatalf("decode %X: %v", b, err)
	}
	return r
}
