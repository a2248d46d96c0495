package luna

import (
	"fmt"
	"io"
)

// Response is a validated command response.
type Response struct {
	Command CommandID
	Data    []byte
}

// VersionInfo is the firmware version reported by GetVersion.
type VersionInfo struct {
	Major uint8
	Minor uint8
	Patch uint8
}

func (v VersionInfo) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// ReadCommandResponse reads one response frame from r.
//
// Each field is read with ReadExact so a stalled device surfaces as
// ErrSerialTimeout. The command id is resolved before the checksum is
// verified, so an unknown id wins over a bad checksum.
func ReadCommandResponse(r io.Reader) (*Response, error) {
	header, err := ReadExact(r, 1)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header[0] != CommandHeader {
		return nil, fmt.Errorf("%w: %02X", ErrInvalidHeader, header[0])
	}

	lengthByte, err := ReadExact(r, 1)
	if err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}
	length := int(lengthByte[0])
	if length < commandOverhead {
		return nil, fmt.Errorf("%w: length field %d", ErrInvalidLength, length)
	}

	// header and length are consumed; the checksum is read separately
	payload, err := ReadExact(r, length-2-1)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	checksum, err := ReadExact(r, 1)
	if err != nil {
		return nil, fmt.Errorf("read checksum: %w", err)
	}

	id, err := ParseCommandID(payload[0])
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, length-1)
	frame = append(frame, CommandHeader, lengthByte[0])
	frame = append(frame, payload...)
	if want := Checksum(frame); want != checksum[0] {
		return nil, &ChecksumError{Expected: want, Received: checksum[0]}
	}

	return &Response{Command: id, Data: payload[1:]}, nil
}

// ParseVersion decodes the data of a GetVersion response.
func ParseVersion(data []byte) (VersionInfo, error) {
	if len(data) < 3 {
		return VersionInfo{}, fmt.Errorf("%w: version response carries %d bytes, want 3", ErrInvalidLength, len(data))
	}
	return VersionInfo{Patch: data[0], Minor: data[1], Major: data[2]}, nil
}
