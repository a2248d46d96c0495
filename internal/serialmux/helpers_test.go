package serialmux

import (
	"testing"
	"time"

	"github.com/banshee-data/tfluna/internal/luna"
	"github.com/banshee-data/tfluna/internal/testutil"
)

func frame(distance uint16) []byte {
	return testutil.Frame(distance, 500, 25)
}

// deviceResponder answers requests the way the sensor does.
func deviceResponder(written []byte) []byte {
	id, _, err := luna.ParseRequest(written)
	if err != nil {
		return nil
	}
	var resp []byte
	switch id {
	case luna.GetVersion:
		resp, _ = luna.BuildCommand(id, []byte{3, 2, 1})
	case luna.SoftReset:
		resp, _ = luna.BuildCommand(id, []byte{0})
	case luna.SampleFreq:
		resp, _ = luna.BuildCommand(id, nil)
	}
	return resp
}

func idlePort() *TestableSerialPort {
	port := NewTestableSerialPort()
	port.IdleWhenEmpty = true
	port.ReadTimeout = time.Millisecond
	return port
}

func subscriberCount[T SerialPorter](s *SerialMux[T]) int {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	return len(s.subscribers)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// noisePort streams a single non-header byte forever and swallows writes.
type noisePort struct{ b byte }

func (p noisePort) Read(buf []byte) (int, error) {
	for i := range buf {
		buf[i] = p.b
	}
	return len(buf), nil
}

func (noisePort) Write(buf []byte) (int, error) { return len(buf), nil }
func (noisePort) Close() error                  { return nil }
