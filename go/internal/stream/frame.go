package stream

import (
	"bufio"
	"io"
	"strings"
)

// Frame is one named event delivered by the server.
// A frame with an empty Event is a keep-alive and is never dispatched.
type Frame struct {
	Event string
	Data  []byte
	ID    string
}

// FrameReader yields frames in transport order. Next returns io.EOF when the
// server ends the stream.
type FrameReader interface {
	Next() (Frame, error)
	Close() error
}

const maxFrameLine = 1 << 20

// sseReader parses a text/event-stream body.
type sseReader struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newSSEReader(body io.ReadCloser) *sseReader {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), maxFrameLine)
	return &sseReader{body: body, scanner: scanner}
}

// Next reads lines until a blank line completes a frame.
// Comment lines (leading ':') and unknown fields are skipped; retry hints are ignored.
func (r *sseReader) Next() (Frame, error) {
	var (
		frame   Frame
		data    strings.Builder
		hasData bool
	)

	for r.scanner.Scan() {
		line := r.scanner.Text()

		if line == "" {
			if frame.Event == "" && !hasData {
				continue
			}
			frame.Data = []byte(data.String())
			return frame, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			frame.Event = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			frame.ID = value
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Frame{}, err
	}
	// An unterminated trailing frame is discarded.
	return Frame{}, io.EOF
}

func (r *sseReader) Close() error {
	return r.body.Close()
}
