package blaze

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/starford/blaze/internal/sse"
)

// Event is one realtime notification from the server. Data is the JSON
// payload text; it is empty when the server sent no payload (the literal
// null), never the string "null".
type Event struct {
	Type string
	Data string
}

// Stream is a pull-based sequence of events over one Server-Sent Events
// connection. It is not restartable: once Recv reports an error the
// stream is finished, and a fresh Stream call establishes a new
// connection. Events arrive in transport order.
type Stream struct {
	body      io.ReadCloser
	dec       *sse.Decoder
	keepAlive bool
}

// Stream opens an event stream at the reference. When keepAliveFriendly
// is true, keep-alive events are delivered to the caller instead of being
// dropped.
func (r *Reference) Stream(ctx context.Context, keepAliveFriendly bool) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.uri.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: unexpected status %d", ErrConnection, resp.StatusCode)
	}

	return &Stream{
		body:      resp.Body,
		dec:       sse.NewDecoder(resp.Body),
		keepAlive: keepAliveFriendly,
	}, nil
}

// Recv blocks until the next event arrives. It returns io.EOF when the
// server closes the stream and ErrConnection for transport failures;
// either way the stream is finished.
func (s *Stream) Recv() (Event, error) {
	for {
		f, err := s.dec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("%w: %v", ErrConnection, err)
		}
		if f.Event == "keep-alive" && !s.keepAlive {
			continue
		}
		data := f.Data
		if data == "null" {
			data = ""
		}
		return Event{Type: f.Event, Data: data}, nil
	}
}

// Close releases the underlying connection. A consumer may stop receiving
// at any time; Close is safe to call while Recv is blocked.
func (s *Stream) Close() error {
	return s.body.Close()
}

// Listen streams events into onEvent until the connection ends. It blocks
// the calling goroutine. A transport failure is passed to onError and
// returned; a server-side close returns nil.
func (r *Reference) Listen(ctx context.Context, onEvent func(Event), onError func(error), keepAliveFriendly bool) error {
	s, err := r.Stream(ctx, keepAliveFriendly)
	if err != nil {
		return err
	}
	defer s.Close()

	for {
		ev, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return err
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}
}
