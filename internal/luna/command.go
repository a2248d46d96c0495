package luna

import (
	"fmt"
	"strings"
)

// Command frame constants.
const (
	CommandHeader = 0x5A

	// commandOverhead counts header, length, command id and checksum.
	commandOverhead = 4
	// MaxCommandParams is the largest parameter list that fits the 8-bit
	// length field.
	MaxCommandParams = 0xFF - commandOverhead
)

// CommandID identifies a command in the request/response protocol.
type CommandID uint8

const (
	GetVersion CommandID = 0x01
	SoftReset  CommandID = 0x02
	SampleFreq CommandID = 0x03
)

// ParseCommandID converts a wire byte into a CommandID. Values outside the
// known set fail with an *UnknownCommandError.
func ParseCommandID(b byte) (CommandID, error) {
	switch id := CommandID(b); id {
	case GetVersion, SoftReset, SampleFreq:
		return id, nil
	default:
		return 0, &UnknownCommandError{ID: b}
	}
}

func (c CommandID) String() string {
	switch c {
	case GetVersion:
		return "GetVersion"
	case SoftReset:
		return "SoftReset"
	case SampleFreq:
		return "SampleFreq"
	default:
		return fmt.Sprintf("CommandID(0x%02X)", uint8(c))
	}
}

// ParseCommandName looks up a command by its String form, case-insensitively.
func ParseCommandName(name string) (CommandID, error) {
	for _, id := range []CommandID{GetVersion, SoftReset, SampleFreq} {
		if strings.EqualFold(name, id.String()) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// BuildCommand encodes a request frame:
//
//	[0x5A][4+len(params)][id][params...][checksum]
func BuildCommand(id CommandID, params []byte) ([]byte, error) {
	if len(params) > MaxCommandParams {
		return nil, fmt.Errorf("%w: %d parameters, max %d", ErrFrameTooLong, len(params), MaxCommandParams)
	}
	length := commandOverhead + len(params)
	frame := make([]byte, 0, length)
	frame = append(frame, CommandHeader, byte(length), byte(id))
	frame = append(frame, params...)
	return append(frame, Checksum(frame)), nil
}

// ParseRequest decodes a complete request frame produced by BuildCommand and
// returns its command id and parameters.
func ParseRequest(frame []byte) (CommandID, []byte, error) {
	if len(frame) < commandOverhead {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(frame))
	}
	if frame[0] != CommandHeader {
		return 0, nil, fmt.Errorf("%w: %02X", ErrInvalidHeader, frame[0])
	}
	if int(frame[1]) != len(frame) {
		return 0, nil, fmt.Errorf("%w: length field %d, frame is %d bytes", ErrInvalidLength, frame[1], len(frame))
	}
	last := len(frame) - 1
	if want := Checksum(frame[:last]); want != frame[last] {
		return 0, nil, &ChecksumError{Expected: want, Received: frame[last]}
	}
	id, err := ParseCommandID(frame[2])
	if err != nil {
		return 0, nil, err
	}
	return id, frame[3:last], nil
}
