package luna

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadExact reads exactly n bytes from r.
//
// Serial ports configured with a read timeout return (0, nil) when the
// timeout expires; that, or a deadline error, fails the read with
// ErrSerialTimeout. If the stream is closed before the first byte io.EOF is
// returned unchanged so callers can tell a finished stream from a stalled one.
// The bytes of a short read are never returned.
func ReadExact(r io.Reader, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative read size %d", ErrInvalidLength, n)
	}
	buf := make([]byte, n)
	got := 0
	for got < n {
		m, err := r.Read(buf[got:])
		got += m
		if got == n {
			return buf, nil
		}
		switch {
		case err == nil && m == 0:
			return nil, fmt.Errorf("%w: read %d of %d bytes", ErrSerialTimeout, got, n)
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			if got == 0 {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("%w: read %d of %d bytes: %w", ErrSerialTimeout, got, n, io.ErrUnexpectedEOF)
		case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, ErrSerialTimeout):
			return nil, fmt.Errorf("%w: read %d of %d bytes", ErrSerialTimeout, got, n)
		default:
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
	}
	return buf, nil
}
