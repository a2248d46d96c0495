// Serialmux owns the sensor's serial port. A single monitor goroutine decodes
// telemetry and runs queued command/response cycles between frames, while any
// number of clients subscribe to the decoded readings.
package serialmux

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/banshee-data/tfluna/internal/luna"
	"github.com/banshee-data/tfluna/internal/metrics"
	"github.com/banshee-data/tfluna/internal/monitoring"
)

// ErrClosed is returned by Do once the mux has been closed.
var ErrClosed = errors.New("serial mux closed")

// subscriberBuffer is the per-subscriber backlog before readings are dropped.
const subscriberBuffer = 64

// SerialMux is a serial port multiplexer that allows multiple clients to
// subscribe to telemetry from a single sensor and to issue commands to it.
type SerialMux[T SerialPorter] struct {
	port     T
	decoder  *luna.Decoder
	client   *luna.Client
	commands chan commandRequest
	metrics  *metrics.LunaMetrics

	onCommand func(id luna.CommandID, request []byte, resp *luna.Response, err error)

	subscribers  map[string]chan luna.Reading
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

type commandRequest struct {
	fn   func(*luna.Client) error
	done chan error
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving decoded readings. The
	// channel ID is used to identify the unique channel when unsubscribing.
	Subscribe() (string, chan luna.Reading)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Do runs fn against the device from the monitor goroutine and returns
	// its error.
	Do(ctx context.Context, fn func(*luna.Client) error) error
	// GetVersion queries the firmware version.
	GetVersion(ctx context.Context) (luna.VersionInfo, error)
	// SetSampleFrequency sets the output rate; 0 selects trigger mode.
	SetSampleFrequency(ctx context.Context, hz uint16) error
	// Monitor decodes telemetry and services commands until ctx is done, the
	// port is closed or an unrecoverable read error occurs.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error
	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux instance backed by port. port must return
// from Read once its read timeout expires, otherwise queued commands wait
// for the next byte.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	s := &SerialMux[T]{
		port:        port,
		decoder:     luna.NewDecoder(port),
		client:      luna.NewClient(port),
		commands:    make(chan commandRequest),
		subscribers: make(map[string]chan luna.Reading),
	}
	s.client.OnCycle = s.commandDone
	return s
}

// UseMetrics records decode and command outcomes in m.
func (s *SerialMux[T]) UseMetrics(m *metrics.LunaMetrics) {
	s.metrics = m
}

// OnCommand registers a callback for every command cycle. It runs on the
// monitor goroutine.
func (s *SerialMux[T]) OnCommand(fn func(id luna.CommandID, request []byte, resp *luna.Response, err error)) {
	s.onCommand = fn
}

func (s *SerialMux[T]) commandDone(id luna.CommandID, request []byte, resp *luna.Response, err error) {
	if err != nil {
		monitoring.Logf("%s failed: %v", id, err)
	}
	if s.metrics != nil {
		s.metrics.ObserveCommand(id, err)
	}
	if s.onCommand != nil {
		s.onCommand(id, request, resp, err)
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan luna.Reading) {
	id := randomID()
	ch := make(chan luna.Reading, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Do queues fn for the monitor goroutine, which owns the port, and waits for
// it to complete.
func (s *SerialMux[T]) Do(ctx context.Context, fn func(*luna.Client) error) error {
	if s.isClosing() {
		return ErrClosed
	}
	req := commandRequest{fn: fn, done: make(chan error, 1)}
	select {
	case s.commands <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SerialMux[T]) GetVersion(ctx context.Context) (luna.VersionInfo, error) {
	var v luna.VersionInfo
	err := s.Do(ctx, func(c *luna.Client) error {
		var err error
		v, err = c.GetVersion()
		return err
	})
	return v, err
}

func (s *SerialMux[T]) SetSampleFrequency(ctx context.Context, hz uint16) error {
	return s.Do(ctx, func(c *luna.Client) error {
		return c.SetSampleFrequency(hz)
	})
}

// Monitor reads frames from the serial port and sends them to subscribers.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-s.commands:
			req.done <- req.fn(s.client)
			continue
		default:
		}

		reading, err := s.decoder.Next()
		if s.isClosing() {
			return nil
		}
		switch {
		case err == nil:
			s.publish(reading)
		case errors.Is(err, io.EOF):
			return nil
		case luna.Recoverable(err):
			if errors.Is(err, luna.ErrInvalidHeader) {
				monitoring.Logf("telemetry: %v", err)
			}
			if s.metrics != nil {
				s.metrics.ObserveDecodeError(err)
			}
		default:
			return fmt.Errorf("telemetry: %w", err)
		}
	}
}

func (s *SerialMux[T]) publish(reading luna.Reading) {
	if s.metrics != nil {
		s.metrics.ObserveReading(reading)
	}
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- reading:
		default:
			// if the channel is full/blocking skip so as not to block the monitor
		}
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	if s.closing {
		s.closingMu.Unlock()
		return nil
	}
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}
