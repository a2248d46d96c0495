package serialmux

import (
	"fmt"

	"go.bug.st/serial"

	"github.com/banshee-data/tfluna/internal/luna"
	"github.com/banshee-data/tfluna/internal/monitoring"
)

// OpenPort opens the serial port at path and applies the read timeout the
// protocol decoders depend on. Failures wrap luna.ErrTransport.
func OpenPort(path string, opts PortOptions) (SerialPorter, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", luna.ErrTransport, path, err)
	}
	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: set read timeout on %s: %w", luna.ErrTransport, path, err)
	}
	return port, nil
}

// RealPortFactory opens ports with OpenPort.
var RealPortFactory SerialPortFactory = SerialPortOpener(OpenPort)

// OpenSerialMux opens path through factory and wraps the port in a
// SerialMux.
func OpenSerialMux(factory SerialPortFactory, path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	port, err := factory.Open(path, opts)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("opened %s", path)
	return NewSerialMux(port), nil
}

// NewRealSerialMux creates a SerialMux instance backed by a real serial port at the
// given path using the provided serial options.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	return OpenSerialMux(RealPortFactory, path, opts)
}
