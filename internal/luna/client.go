package luna

import (
	"fmt"
	"io"

	"github.com/banshee-data/tfluna/internal/monitoring"
)

// Sample frequency limits for SetSampleDivisor.
const (
	BaseSampleFrequency = 500
	MinSampleDivisor    = 2
	MaxSampleDivisor    = 500
)

// Client runs command/response cycles against a device. It is not safe for
// concurrent use; the port must not be read by anything else while a cycle
// is in flight.
type Client struct {
	port io.ReadWriter

	sampleFrequency uint16
	triggerMode     bool

	// OnCycle, if set, is called after every request/response cycle with the
	// frame sent, the response (nil on failure) and the cycle error.
	OnCycle func(id CommandID, request []byte, resp *Response, err error)
}

// NewClient returns a Client using port for both directions.
func NewClient(port io.ReadWriter) *Client {
	return &Client{port: port}
}

// SendCommand encodes and writes one command frame and returns the bytes
// written.
func (c *Client) SendCommand(id CommandID, params []byte) ([]byte, error) {
	frame, err := BuildCommand(id, params)
	if err != nil {
		return nil, err
	}
	n, err := c.port.Write(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: write %s: %w", ErrTransport, id, err)
	}
	if n != len(frame) {
		return nil, fmt.Errorf("%w: wrote %d of %d bytes", ErrTransport, n, len(frame))
	}
	monitoring.Logf("sent: %x", frame)
	return frame, nil
}

// Request sends a command and waits for the matching response.
func (c *Client) Request(id CommandID, params []byte) (*Response, error) {
	frame, err := c.SendCommand(id, params)
	if err != nil {
		c.cycleDone(id, nil, nil, err)
		return nil, err
	}
	resp, err := ReadCommandResponse(c.port)
	if err != nil {
		err = fmt.Errorf("%s response: %w", id, err)
	} else if resp.Command != id {
		err = &CommandMismatchError{Want: id, Got: resp.Command}
	}
	if err != nil {
		c.cycleDone(id, frame, nil, err)
		return nil, err
	}
	monitoring.Logf("received: %s % x", resp.Command, resp.Data)
	c.cycleDone(id, frame, resp, nil)
	return resp, nil
}

func (c *Client) cycleDone(id CommandID, request []byte, resp *Response, err error) {
	if c.OnCycle != nil {
		c.OnCycle(id, request, resp, err)
	}
}

// GetVersion queries the firmware version.
func (c *Client) GetVersion() (VersionInfo, error) {
	resp, err := c.Request(GetVersion, nil)
	if err != nil {
		return VersionInfo{}, err
	}
	return ParseVersion(resp.Data)
}

// SetSampleFrequency sets the telemetry output rate in Hz. 0 switches the
// device to trigger mode.
func (c *Client) SetSampleFrequency(freq uint16) error {
	if _, err := c.Request(SampleFreq, []byte{byte(freq & 0xFF), byte((freq >> 8) & 0xFF)}); err != nil {
		return err
	}
	c.sampleFrequency = freq
	c.triggerMode = freq == 0
	return nil
}

// SetSampleDivisor sets the output rate to BaseSampleFrequency/divisor.
// Divisor 0 selects trigger mode.
func (c *Client) SetSampleDivisor(divisor uint16) error {
	if divisor == 0 {
		return c.SetTriggerMode()
	}
	if divisor < MinSampleDivisor || divisor > MaxSampleDivisor {
		return fmt.Errorf("%w: %d is outside [%d,%d]", ErrInvalidDivisor, divisor, MinSampleDivisor, MaxSampleDivisor)
	}
	return c.SetSampleFrequency(BaseSampleFrequency / divisor)
}

// SetTriggerMode stops continuous output; the device then only measures on
// request.
func (c *Client) SetTriggerMode() error {
	return c.SetSampleFrequency(0)
}

// SoftReset restarts the device firmware.
func (c *Client) SoftReset() error {
	_, err := c.Request(SoftReset, nil)
	return err
}

// SampleFrequency returns the last frequency successfully configured.
func (c *Client) SampleFrequency() uint16 { return c.sampleFrequency }

// TriggerMode reports whether the last configuration put the device into
// trigger mode.
func (c *Client) TriggerMode() bool { return c.triggerMode }
