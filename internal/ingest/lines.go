package ingest

import (
	"bufio"
	"errors"
	"io"
)

// lineReader splits a stream the way bufio.ScanLines does, except that a line
// longer than limit is skipped instead of ending the read.
type lineReader struct {
	br    *bufio.Reader
	limit int
	buf   []byte
}

func newLineReader(r io.Reader, limit int) *lineReader {
	return &lineReader{br: bufio.NewReaderSize(r, 64*1024), limit: limit}
}

// next returns the next line without its "\n" or "\r\n" terminator. A line
// over limit bytes is discarded as it streams past and reported with long set.
// The returned slice is only valid until the following call.
func (lr *lineReader) next() (line []byte, long bool, err error) {
	lr.buf = lr.buf[:0]
	for {
		chunk, err := lr.br.ReadSlice('\n')
		if !long {
			lr.buf = append(lr.buf, chunk...)
			if len(lr.buf) > lr.limit+2 {
				long = true
				lr.buf = lr.buf[:0]
			}
		}
		switch {
		case err == nil:
			return lr.finish(long)
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(lr.buf) == 0 && !long {
				return nil, false, io.EOF
			}
			return lr.finish(long)
		default:
			return nil, false, err
		}
	}
}

func (lr *lineReader) finish(long bool) ([]byte, bool, error) {
	if long {
		return nil, true, nil
	}
	line := lr.buf
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if len(line) > lr.limit {
		return nil, true, nil
	}
	return line, false, nil
}
