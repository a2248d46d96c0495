package luna

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHeader is returned when a frame does not start with the
	// expected header byte(s).
	ErrInvalidHeader = errors.New("invalid header")
	// ErrInvalidChecksum is returned when a command response checksum does not
	// match the bytes received.
	ErrInvalidChecksum = errors.New("invalid checksum")
	// ErrUnknownCommand is returned for command ids outside the known set and
	// for responses that answer a different command than the one requested.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrSerialTimeout is returned when an exact-length read gave up before
	// all bytes arrived.
	ErrSerialTimeout = errors.New("serial timeout")
	// ErrTransport is returned when the underlying stream could not be opened,
	// written or read.
	ErrTransport = errors.New("transport error")
	// ErrInvalidLength is returned when a length field or payload is too short
	// to hold the fields it must carry.
	ErrInvalidLength = errors.New("invalid frame length")
	// ErrFrameTooLong is returned when a command would not fit in the 8-bit
	// length field.
	ErrFrameTooLong = errors.New("frame too long")
	// ErrInvalidDivisor is returned for sample frequency divisors the device
	// does not support.
	ErrInvalidDivisor = errors.New("invalid sample frequency divisor")
)

// ChecksumError describes a checksum mismatch.
type ChecksumError struct {
	Expected byte
	Received byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: expected %02X, received %02X", e.Expected, e.Received)
}

func (e *ChecksumError) Is(target error) bool { return target == ErrInvalidChecksum }

// UnknownCommandError reports a command id byte that does not map to a
// CommandID.
type UnknownCommandError struct {
	ID byte
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command id: %02X", e.ID)
}

func (e *UnknownCommandError) Is(target error) bool { return target == ErrUnknownCommand }

// CommandMismatchError reports a well-formed response that answers a
// different command than the one sent.
type CommandMismatchError struct {
	Want CommandID
	Got  CommandID
}

func (e *CommandMismatchError) Error() string {
	return fmt.Sprintf("received a response for %s, expected %s", e.Got, e.Want)
}

func (e *CommandMismatchError) Is(target error) bool { return target == ErrUnknownCommand }
