// Package sse implements Server-Sent Events wire handling: a client-side
// frame decoder and a broker that fans events out to the emulator's
// connected streams.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Frame is one decoded SSE frame: the event type and the joined data
// lines. Comment-only frames are never surfaced.
type Frame struct {
	Event string
	Data  string
}

// Decoder reads SSE frames from a byte stream.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r for frame decoding.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next blocks until a complete frame arrives and returns it. Comment
// lines (leading ':') are dropped. Multiple data lines within one frame
// are joined with '\n'. A frame with no event field reports the protocol
// default type "message". Next returns io.EOF when the stream ends.
func (d *Decoder) Next() (Frame, error) {
	var (
		event string
		data  []string
		seen  bool
	)
	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			return Frame{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if !seen {
				continue
			}
			if event == "" {
				event = "message"
			}
			return Frame{Event: event, Data: strings.Join(data, "\n")}, nil

		case strings.HasPrefix(line, ":"):
			// Comment.

		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				event = value
				seen = true
			case "data":
				data = append(data, value)
				seen = true
			}
		}
	}
}
