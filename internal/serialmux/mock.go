package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/tfluna/internal/luna"
	"github.com/banshee-data/tfluna/internal/monitoring"
	"github.com/banshee-data/tfluna/internal/timeutil"
)

var errPortClosed = errors.New("serial port closed")

// SimulatedSensor is a TimeoutSerialPorter that behaves like a TF-Luna on
// the other end of the cable. It emits telemetry at the configured rate and
// answers GetVersion, SoftReset and SampleFreq requests.
type SimulatedSensor struct {
	mu sync.Mutex

	clock       timeutil.Clock
	out         bytes.Buffer
	closed      bool
	readTimeout time.Duration

	frequency uint16
	frames    uint64

	// Version is reported by GetVersion.
	Version luna.VersionInfo
	// CorruptEvery, when non-zero, flips the checksum of every Nth frame.
	CorruptEvery uint64
}

// DefaultSimulatedFrequency is the output rate of a freshly powered sensor.
const DefaultSimulatedFrequency = 100

// NewSimulatedSensor creates a sensor that sleeps on clock between frames.
func NewSimulatedSensor(clock timeutil.Clock) *SimulatedSensor {
	return &SimulatedSensor{
		clock:       clock,
		readTimeout: DefaultReadTimeout,
		frequency:   DefaultSimulatedFrequency,
		Version:     luna.VersionInfo{Major: 1, Minor: 2, Patch: 3},
	}
}

// NewMockSerialMux creates a SerialMux instance backed by a simulated sensor.
func NewMockSerialMux() *SerialMux[*SimulatedSensor] {
	monitoring.Logf("using simulated TF-Luna sensor")
	return NewSerialMux(NewSimulatedSensor(timeutil.RealClock{}))
}

// Frequency returns the current output rate; 0 means trigger mode.
func (s *SimulatedSensor) Frequency() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frequency
}

// Read returns pending response bytes first, then the next telemetry frame.
// In trigger mode it waits out the read timeout and returns (0, nil) like an
// idle line.
func (s *SimulatedSensor) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.EOF
	}
	if s.out.Len() > 0 {
		defer s.mu.Unlock()
		return s.out.Read(p)
	}

	wait := s.readTimeout
	if s.frequency > 0 {
		wait = time.Second / time.Duration(s.frequency)
	}
	s.mu.Unlock()

	s.clock.Sleep(wait)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.EOF
	}
	if s.out.Len() == 0 && s.frequency > 0 {
		s.out.Write(s.nextFrame())
	}
	if s.out.Len() == 0 {
		return 0, nil
	}
	return s.out.Read(p)
}

// nextFrame must be called with mu held.
func (s *SimulatedSensor) nextFrame() []byte {
	s.frames++
	// A target drifting between 0.5m and 2.5m.
	distance := 50 + uint16((s.frames*7)%200)
	frame := luna.EncodeTelemetry(luna.TelemetryFrame{
		Distance:       distance,
		Strength:       uint16(6000 - int(distance)*20),
		RawTemperature: (256 + 38) * 8,
	})
	if s.CorruptEvery > 0 && s.frames%s.CorruptEvery == 0 {
		frame[8] ^= 0xFF
	}
	return frame
}

// Write accepts exactly one request frame and queues the response.
func (s *SimulatedSensor) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errPortClosed
	}

	id, params, err := luna.ParseRequest(p)
	if err != nil {
		monitoring.Logf("simulated sensor: ignoring request % x: %v", p, err)
		return len(p), nil
	}

	var data []byte
	switch id {
	case luna.GetVersion:
		data = []byte{s.Version.Patch, s.Version.Minor, s.Version.Major}
	case luna.SoftReset:
		data = []byte{0x00}
		s.frequency = DefaultSimulatedFrequency
	case luna.SampleFreq:
		if len(params) == 2 {
			s.frequency = uint16(params[0]) | uint16(params[1])<<8
		}
	}
	// Responses share the request layout; SampleFreq acknowledges with the
	// command id alone.
	resp, _ := luna.BuildCommand(id, data)
	s.out.Reset()
	s.out.Write(resp)
	return len(p), nil
}

// SetReadTimeout implements TimeoutSerialPorter.
func (s *SimulatedSensor) SetReadTimeout(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readTimeout = timeout
	return nil
}

// Close stops the sensor; subsequent reads return io.EOF.
func (s *SimulatedSensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// TestableSerialPort implements SerialPorter with configurable behaviour for testing.
// It provides fine-grained control over reads, writes, errors, and latency.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadLatency adds a delay to each Read call
	ReadLatency time.Duration

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// IdleWhenEmpty makes Read on an empty buffer sleep for ReadTimeout and
	// return (0, nil) instead of io.EOF.
	IdleWhenEmpty bool

	// Responder, if set, is called with every written frame; its result is
	// appended to ReadBuffer.
	Responder func(written []byte) []byte
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	return &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
		ReadTimeout: 5 * time.Millisecond,
	}
}

// Read reads from the read buffer, optionally simulating latency and errors.
func (t *TestableSerialPort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.Closed {
		return 0, errPortClosed
	}

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	if t.ReadLatency > 0 {
		t.mu.Unlock()
		time.Sleep(t.ReadLatency)
		t.mu.Lock()
	}

	if t.ReadBuffer.Len() == 0 && t.IdleWhenEmpty {
		t.mu.Unlock()
		time.Sleep(t.ReadTimeout)
		t.mu.Lock()
		if t.Closed {
			return 0, errPortClosed
		}
		if t.ReadBuffer.Len() == 0 {
			return 0, nil
		}
	}

	return t.ReadBuffer.Read(p)
}

// Write writes to the write buffer, optionally simulating errors.
func (t *TestableSerialPort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++

	if t.Closed {
		return 0, errPortClosed
	}

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}

	if t.Responder != nil {
		t.ReadBuffer.Write(t.Responder(p))
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
}

// GetWrittenData returns all data written to the port.
func (t *TestableSerialPort) GetWrittenData() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	return bytes.Clone(t.WriteBuffer.Bytes())
}

// MockSerialPortFactory implements SerialPortFactory for testing.
type MockSerialPortFactory struct {
	mu sync.Mutex

	// Port is the port to return from Open
	Port SerialPorter

	// Error is returned by Open if set
	Error error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path    string
	Options PortOptions
}

// NewMockSerialPortFactory creates a new MockSerialPortFactory.
func NewMockSerialPortFactory(port SerialPorter) *MockSerialPortFactory {
	return &MockSerialPortFactory{Port: port}
}

// Open returns the configured port or error.
func (f *MockSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{
		Path:    path,
		Options: opts,
	})

	if f.Error != nil {
		return nil, f.Error
	}

	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockSerialPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}

// Reset clears all recorded calls.
func (f *MockSerialPortFactory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = nil
	f.Error = nil
}
