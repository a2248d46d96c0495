package luna

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
)

type decoderState int

// maxSeekBytes bounds one header search so a line carrying only noise still
// hands control back to the caller.
const maxSeekBytes = 4 * TelemetryFrameSize

const (
	stateSeeking decoderState = iota // scanning for 0x59 0x59
	stateReading                     // header matched, 7 bytes outstanding
)

// Decoder extracts telemetry frames from a byte stream.
//
// The decoder never looks back: after a frame is consumed scanning resumes
// at the byte following its checksum, so a checksum that happens to equal
// the header byte cannot start a false frame.
type Decoder struct {
	r         io.Reader
	state     decoderState
	discarded uint64
}

// NewDecoder returns a Decoder reading from r. r should be configured with a
// read timeout; see ReadExact.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Discarded returns the number of bytes skipped while searching for a header.
func (d *Decoder) Discarded() uint64 { return d.discarded }

// Next blocks until one frame has been decoded or the read fails.
//
// A header byte followed by anything other than a second header byte yields
// ErrInvalidHeader, as does a search that skips maxSeekBytes without finding
// a header. A frame that stalls part way yields ErrSerialTimeout.
// Either way the partial frame is dropped and the next call starts seeking
// again. io.EOF means the stream is closed.
func (d *Decoder) Next() (Reading, error) {
	d.state = stateSeeking
	skipped := 0
	for {
		switch d.state {
		case stateSeeking:
			b, err := ReadExact(d.r, 1)
			if err != nil {
				return Reading{}, err
			}
			if b[0] != TelemetryHeader {
				d.discarded++
				if skipped++; skipped >= maxSeekBytes {
					return Reading{}, fmt.Errorf("%w: no header in %d bytes", ErrInvalidHeader, skipped)
				}
				continue
			}
			b, err = ReadExact(d.r, 1)
			if err != nil {
				return Reading{}, err
			}
			if b[0] != TelemetryHeader {
				d.discarded += 2
				return Reading{}, fmt.Errorf("%w: %02X %02X", ErrInvalidHeader, TelemetryHeader, b[0])
			}
			d.state = stateReading

		case stateReading:
			d.state = stateSeeking
			rest, err := ReadExact(d.r, TelemetryFrameSize-2)
			if err != nil {
				return Reading{}, err
			}
			frame := make([]byte, 0, TelemetryFrameSize)
			frame = append(frame, TelemetryHeader, TelemetryHeader)
			frame = append(frame, rest...)
			return DecodeTelemetry(frame)
		}
	}
}

// Frames returns the endless sequence of decoded frames.
//
// Recoverable errors are yielded alongside a zero Reading and decoding
// continues. The sequence ends when the stream reaches io.EOF, ctx is done,
// the consumer stops, or after yielding an unrecoverable error.
func (d *Decoder) Frames(ctx context.Context) iter.Seq2[Reading, error] {
	return func(yield func(Reading, error) bool) {
		for ctx.Err() == nil {
			reading, err := d.Next()
			switch {
			case err == nil:
				if !yield(reading, nil) {
					return
				}
			case errors.Is(err, io.EOF):
				return
			case Recoverable(err):
				if !yield(Reading{}, err) {
					return
				}
			default:
				yield(Reading{}, err)
				return
			}
		}
	}
}

// Recoverable reports whether err leaves a telemetry stream usable for the
// next frame.
func Recoverable(err error) bool {
	return errors.Is(err, ErrInvalidHeader) || errors.Is(err, ErrSerialTimeout)
}
