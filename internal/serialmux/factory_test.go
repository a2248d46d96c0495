package serialmux

import (
	"errors"
	"testing"

	"github.com/banshee-data/tfluna/internal/luna"
)

func TestNewRealSerialMux_InvalidPath(t *testing.T) {
	mux, err := NewRealSerialMux("/dev/nonexistent-serial-port-12345", PortOptions{})
	if err == nil {
		mux.Close()
		t.Fatal("expected error when opening non-existent serial port")
	}
	if !errors.Is(err, luna.ErrTransport) {
		t.Errorf("error %v should wrap ErrTransport", err)
	}
	if mux != nil {
		t.Error("expected nil mux when error is returned")
	}
}

func TestRealPortFactory_InvalidOptions(t *testing.T) {
	_, err := RealPortFactory.Open("/dev/nonexistent-serial-port-12345", PortOptions{BaudRate: 12345})
	if err == nil {
		t.Fatal("expected error for invalid baud rate")
	}
	// Options are validated before the device is touched.
	if errors.Is(err, luna.ErrTransport) {
		t.Errorf("invalid options should not be reported as a transport error: %v", err)
	}
}

func TestMockSerialPortFactory(t *testing.T) {
	port := NewTestableSerialPort()
	factory := NewMockSerialPortFactory(port)

	got, err := factory.Open("/dev/ttyUSB0", PortOptions{BaudRate: 9600})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got != SerialPorter(port) {
		t.Error("Open() should return the configured port")
	}
	call := factory.LastCall()
	if call == nil || call.Path != "/dev/ttyUSB0" || call.Options.BaudRate != 9600 {
		t.Errorf("LastCall() = %+v", call)
	}

	factory.Error = errors.New("busy")
	if _, err := factory.Open("/dev/ttyUSB1", PortOptions{}); err == nil {
		t.Error("expected configured error")
	}
	if len(factory.OpenCalls) != 2 {
		t.Errorf("OpenCalls = %d, want 2", len(factory.OpenCalls))
	}

	factory.Reset()
	if factory.LastCall() != nil {
		t.Error("Reset() should clear recorded calls")
	}
}

func TestOpenSerialMux(t *testing.T) {
	port := NewTestableSerialPort()
	factory := NewMockSerialPortFactory(port)

	mux, err := OpenSerialMux(factory, "/dev/serial0", PortOptions{BaudRate: 115200})
	if err != nil {
		t.Fatalf("OpenSerialMux() error = %v", err)
	}
	if call := factory.LastCall(); call == nil || call.Path != "/dev/serial0" {
		t.Errorf("LastCall() = %+v", call)
	}
	if err := mux.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !port.Closed {
		t.Error("closing the mux should close the port")
	}

	factory.Error = luna.ErrTransport
	if _, err := OpenSerialMux(factory, "/dev/serial0", PortOptions{}); !errors.Is(err, luna.ErrTransport) {
		t.Errorf("OpenSerialMux() error = %v, want ErrTransport", err)
	}
}
