package luna

import (
	"encoding/binary"
	"fmt"
)

// Telemetry frame constants.
const (
	TelemetryHeader    = 0x59
	TelemetryFrameSize = 9
)

// TelemetryFrame is one decoded measurement frame.
type TelemetryFrame struct {
	Distance       uint16 // cm
	Strength       uint16
	RawTemperature uint16
	Checksum       byte
}

// DistanceMM returns the distance in millimetres.
func (f TelemetryFrame) DistanceMM() int {
	return int(f.Distance) * 10
}

// TemperatureCelsius decodes the chip temperature (raw/8 - 256).
func (f TelemetryFrame) TemperatureCelsius() float64 {
	return float64(f.RawTemperature)/8 - 256
}

// TemperatureFahrenheit is TemperatureCelsius in °F.
func (f TelemetryFrame) TemperatureFahrenheit() float64 {
	return f.TemperatureCelsius()*9/5 + 32
}

// Status is the checksum verdict for a telemetry frame.
type Status int

const (
	StatusOK Status = iota
	StatusChecksumError
)

func (s Status) String() string {
	if s == StatusOK {
		return "OK"
	}
	return "ERR"
}

// Reading is a decoded telemetry frame together with its checksum status.
// Frames with a bad checksum are still returned; Expected holds the
// checksum computed over the first 8 bytes.
type Reading struct {
	Frame    TelemetryFrame
	Status   Status
	Expected byte
}

// OK reports whether the received checksum matched.
func (r Reading) OK() bool { return r.Status == StatusOK }

func (r Reading) String() string {
	return fmt.Sprintf("distance=%dcm strength=%d temp=%.2fC checksum=%02X/%02X status=%s",
		r.Frame.Distance, r.Frame.Strength, r.Frame.TemperatureCelsius(),
		r.Frame.Checksum, r.Expected, r.Status)
}

// DecodeTelemetry decodes an aligned 9-byte telemetry frame. A checksum
// mismatch is reported through Reading.Status, not as an error.
func DecodeTelemetry(b []byte) (Reading, error) {
	if len(b) != TelemetryFrameSize {
		return Reading{}, fmt.Errorf("%w: telemetry frame is %d bytes, want %d", ErrInvalidLength, len(b), TelemetryFrameSize)
	}
	if b[0] != TelemetryHeader || b[1] != TelemetryHeader {
		return Reading{}, fmt.Errorf("%w: %02X %02X", ErrInvalidHeader, b[0], b[1])
	}
	frame := TelemetryFrame{
		Distance:       binary.LittleEndian.Uint16(b[2:4]),
		Strength:       binary.LittleEndian.Uint16(b[4:6]),
		RawTemperature: binary.LittleEndian.Uint16(b[6:8]),
		Checksum:       b[8],
	}
	reading := Reading{Frame: frame, Expected: Checksum(b[:8])}
	if reading.Expected != frame.Checksum {
		reading.Status = StatusChecksumError
	}
	return reading, nil
}

// EncodeTelemetry builds the wire form of f. The checksum byte is computed;
// f.Checksum is ignored.
func EncodeTelemetry(f TelemetryFrame) []byte {
	b := make([]byte, TelemetryFrameSize)
	b[0], b[1] = TelemetryHeader, TelemetryHeader
	binary.LittleEndian.PutUint16(b[2:4], f.Distance)
	binary.LittleEndian.PutUint16(b[4:6], f.Strength)
	binary.LittleEndian.PutUint16(b[6:8], f.RawTemperature)
	b[8] = Checksum(b[:8])
	return b
}
