package link

import (
	"bytes"
	"io"
)

const (
	readChunkSize = 256
	// maxLineLength bounds the pending buffer; longer runs without a newline
	// are garbage and get dropped.
	maxLineLength = 4096
)

// lineReader splits a timeout-based byte stream into lines. The underlying
// reader must return (0, nil) when its read timeout expires. Partial lines
// are kept across calls.
type lineReader struct {
	r       io.Reader
	pending []byte
	buf     []byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{
		r:   r,
		buf: make([]byte, readChunkSize),
	}
}

// readLine returns the next line, or "" when one read completed no line.
// Each call performs at most one Read, so a stream without newlines cannot
// hold the caller past one read timeout.
func (l *lineReader) readLine() (string, error) {
	if line, ok := l.takeLine(); ok {
		return line, nil
	}

	n, err := l.r.Read(l.buf)
	if n > 0 {
		l.pending = append(l.pending, l.buf[:n]...)
		if line, ok := l.takeLine(); ok {
			return line, nil
		}
		if len(l.pending) > maxLineLength {
			l.pending = l.pending[:0]
		}
	}
	if err != nil {
		return "", err
	}
	return "", nil
}

func (l *lineReader) takeLine() (string, bool) {
	i := bytes.IndexByte(l.pending, '\n')
	if i < 0 {
		return "", false
	}
	line := string(l.pending[:i])
	l.pending = l.pending[i+1:]
	return line, true
}

// reset drops any partially received line.
func (l *lineReader) reset() {
	l.pending = l.pending[:0]
}
