package serialmux

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/banshee-data/tfluna/internal/luna"
	"github.com/banshee-data/tfluna/internal/metrics"
)

// ErrDisabled is returned by commands issued to a DisabledSerialMux.
var ErrDisabled = errors.New("sensor disabled")

// DisabledSerialMux is a no-op SerialMux implementation used when the sensor
// is absent (for serve --disable-sensor). It lets the HTTP server, stored
// sessions and metrics run without a device. Subscriber channels are tracked
// so they close on Unsubscribe() or Close() and readers unblock during
// shutdown.
type DisabledSerialMux struct {
	mu          sync.Mutex
	subscribers map[string]chan luna.Reading
	closing     bool
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{
		subscribers: make(map[string]chan luna.Reading),
	}
}

func (d *DisabledSerialMux) Subscribe() (string, chan luna.Reading) {
	id := randomID()
	ch := make(chan luna.Reading)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		// If already closing, return a closed channel so callers don't block.
		close(ch)
		return id, ch
	}
	d.subscribers[id] = ch
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
}

func (d *DisabledSerialMux) Do(context.Context, func(*luna.Client) error) error { return ErrDisabled }

func (d *DisabledSerialMux) GetVersion(context.Context) (luna.VersionInfo, error) {
	return luna.VersionInfo{}, ErrDisabled
}

func (d *DisabledSerialMux) SetSampleFrequency(context.Context, uint16) error { return ErrDisabled }

// UseMetrics is a no-op; a disabled sensor produces nothing to count.
func (d *DisabledSerialMux) UseMetrics(*metrics.LunaMetrics) {}

// OnCommand is a no-op; commands never reach a device.
func (d *DisabledSerialMux) OnCommand(func(luna.CommandID, []byte, *luna.Response, error)) {}

func (d *DisabledSerialMux) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	return nil
}

func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/debug/sensor-disabled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("sensor disabled"))
	})
}
