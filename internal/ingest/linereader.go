package ingest

import (
	"bufio"
	"errors"
	"io"
)

const initialBufSize = 64 * 1024

// errLineTooLong is returned by next for a line longer than maxLen.
// The reader has already skipped past it.
var errLineTooLong = errors.New("line exceeds maximum length")

// lineReader reads NDJSON input line by line. Oversized lines are
// consumed and reported rather than aborting the read. The buffer
// starts small and grows on demand up to maxLen.
type lineReader struct {
	r      *bufio.Reader
	maxLen int
	buf    []byte
	n      int // lines consumed, blank ones included
}

func newLineReader(r io.Reader, maxLen int) *lineReader {
	return &lineReader{
		r:      bufio.NewReaderSize(r, initialBufSize),
		maxLen: maxLen,
		buf:    make([]byte, 0, initialBufSize),
	}
}

// next returns the next non-blank line without its trailing
// newline. It returns errLineTooLong for a skipped line, io.EOF at
// the end of input, or the underlying read error.
func (lr *lineReader) next() (string, error) {
	for {
		line, err := lr.readLine()
		if err != nil {
			return "", err
		}
		if line != "" {
			return line, nil
		}
	}
}

// line returns the 1-based number of the line last returned.
func (lr *lineReader) line() int { return lr.n }

func (lr *lineReader) readLine() (string, error) {
	lr.buf = lr.buf[:0]
	oversized := false

	for {
		chunk, isPrefix, err := lr.r.ReadLine()
		if err != nil {
			if err == io.EOF && (len(lr.buf) > 0 || oversized) {
				break
			}
			return "", err
		}
		if oversized {
			if !isPrefix {
				break
			}
			continue
		}

		lr.buf = append(lr.buf, chunk...)
		if len(lr.buf) > lr.maxLen {
			oversized = true
			lr.buf = lr.buf[:0]
			if !isPrefix {
				break
			}
			continue
		}
		if !isPrefix {
			break
		}
	}

	lr.n++
	if oversized {
		return "", errLineTooLong
	}
	return string(lr.buf), nil
}
