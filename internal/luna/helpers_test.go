package luna

import (
	"bytes"
	"io"
)

// timeout marks a Read that returns (0, nil), the way a serial port with a
// read timeout reports that nothing arrived.
var timeout []byte

// scriptedReader replays chunks one Read at a time. A nil chunk is a
// timeout; once the script is exhausted Read returns err (io.EOF if unset).
type scriptedReader struct {
	chunks [][]byte
	err    error
}

func script(chunks ...[]byte) *scriptedReader {
	return &scriptedReader{chunks: chunks}
}

func (s *scriptedReader) Read(p []byte) (int, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		return 0, io.EOF
	}
	chunk := s.chunks[0]
	if chunk == nil {
		s.chunks = s.chunks[1:]
		return 0, nil
	}
	n := copy(p, chunk)
	if n == len(chunk) {
		s.chunks = s.chunks[1:]
	} else {
		s.chunks[0] = chunk[n:]
	}
	return n, nil
}

// fakePort pairs a scripted reader with a capturing writer.
type fakePort struct {
	*scriptedReader
	written  bytes.Buffer
	writeErr error
	short    bool
}

func newFakePort(chunks ...[]byte) *fakePort {
	return &fakePort{scriptedReader: script(chunks...)}
}

func (f *fakePort) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.short {
		f.written.Write(p[:len(p)/2])
		return len(p) / 2, nil
	}
	return f.written.Write(p)
}

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

// noise never runs dry and never carries a header byte.
type noise byte

func (n noise) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(n)
	}
	return len(p), nil
}
