package pipeline

import (
	"bufio"
	"bytes"
	"io"

	"golang.org/x/xerrors"
)

const (
	defaultEventType = "message"
	readBufferSize   = 64 << 10
)

var (
	errEventTooLarge = xerrors.New("event exceeds the maximum event size")
	errMissingFrame  = xerrors.New("payload has neither a frame nor an error")
)

type sseEvent struct {
	Type string
	ID   string
	Data []byte
}

// sseReader parses a text/event-stream body into events. Comment lines, the retry
// field and unknown fields are ignored. An event left incomplete at EOF is discarded.
type sseReader struct {
	br        *bufio.Reader
	max       int
	lastID    string
	line      []byte
	pendingCR bool
}

func newSSEReader(r io.Reader, maxEventSize int) *sseReader {
	return &sseReader{
		br:  bufio.NewReaderSize(r, readBufferSize),
		max: maxEventSize,
	}
}

// Next blocks until a complete event is available. It returns io.EOF when the
// stream ends cleanly. An event whose data exceeds the maximum size is read to
// its end and reported as errEventTooLarge; the reader stays usable after that.
func (r *sseReader) Next() (sseEvent, error) {
	var (
		data      bytes.Buffer
		evType    string
		hasData   bool
		oversized bool
	)

	for {
		line, tooLong, err := r.readLine()
		if err != nil {
			if err == io.EOF {
				return sseEvent{}, io.EOF
			}
			return sseEvent{}, xerrors.Errorf("reading event stream: %w", err)
		}

		if tooLong {
			oversized = true
			data.Reset()
			continue
		}

		if len(line) == 0 {
			if oversized {
				return sseEvent{}, errEventTooLarge
			}
			if !hasData {
				evType = ""
				continue
			}
			if evType == "" {
				evType = defaultEventType
			}
			return sseEvent{
				Type: evType,
				ID:   r.lastID,
				Data: bytes.TrimSuffix(data.Bytes(), []byte{'\n'}),
			}, nil
		}

		if line[0] == ':' {
			continue
		}

		field, value := line, []byte{}
		if i := bytes.IndexByte(line, ':'); i >= 0 {
			field, value = line[:i], line[i+1:]
			value = bytes.TrimPrefix(value, []byte{' '})
		}

		switch string(field) {
		case "data":
			if oversized {
				continue
			}
			if data.Len()+len(value)+1 > r.max {
				oversized = true
				data.Reset()
				continue
			}
			data.Write(value)
			data.WriteByte('\n')
			hasData = true
		case "event":
			evType = string(value)
		case "id":
			if bytes.IndexByte(value, 0) < 0 {
				r.lastID = string(value)
			}
		}
	}
}

// readLine returns the next line without its terminator. Lines end on LF, CRLF or
// a lone CR. A line longer than the event limit is consumed but not kept, and
// tooLong is set instead. The returned slice is only valid until the next call.
func (r *sseReader) readLine() ([]byte, bool, error) {
	limit := r.max + len("data: ")
	r.line = r.line[:0]
	tooLong := false

	// the LF of a CRLF pair is only looked at once the next line is wanted
	if r.pendingCR {
		r.pendingCR = false
		b, err := r.br.Peek(1)
		if err != nil {
			return nil, false, err
		}
		if b[0] == '\n' {
			_, _ = r.br.Discard(1)
		}
	}

	for {
		if r.br.Buffered() == 0 {
			if _, err := r.br.Peek(1); err != nil {
				return nil, false, err
			}
		}

		buf, _ := r.br.Peek(r.br.Buffered())
		end := bytes.IndexAny(buf, "\r\n")
		chunk := buf
		if end >= 0 {
			chunk = buf[:end]
		}

		if !tooLong {
			if len(r.line)+len(chunk) > limit {
				tooLong = true
				r.line = r.line[:0]
			} else {
				r.line = append(r.line, chunk...)
			}
		}

		if end < 0 {
			_, _ = r.br.Discard(len(buf))
			continue
		}

		r.pendingCR = buf[end] == '\r'
		_, _ = r.br.Discard(end + 1)
		return r.line, tooLong, nil
	}
}
