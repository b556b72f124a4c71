package blaze

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
)

func sseHandler(t *testing.T, frames ...string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q, want text/event-stream", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fl, _ := w.(http.Flusher)
		for _, f := range frames {
			_, _ = io.WriteString(w, f)
			if fl != nil {
				fl.Flush()
			}
		}
	})
}

func TestStreamDeliversEvents(t *testing.T) {
	ref := newTestRef(t, sseHandler(t,
		"event: put\ndata: {\"path\":\"/\",\"data\":{\"a\":1}}\n\n",
		"event: patch\ndata: {\"path\":\"/a\",\"data\":2}\n\n",
	))

	s, err := ref.At("items").Stream(context.Background(), false)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	ev, err := s.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if ev.Type != "put" || ev.Data != `{"path":"/","data":{"a":1}}` {
		t.Errorf("event = %+v", ev)
	}

	ev, err = s.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if ev.Type != "patch" {
		t.Errorf("type = %q, want patch", ev.Type)
	}

	if _, err := s.Recv(); !errors.Is(err, io.EOF) {
		t.Errorf("error = %v, want io.EOF", err)
	}
}

func TestStreamDropsKeepAlives(t *testing.T) {
	ref := newTestRef(t, sseHandler(t,
		"event: keep-alive\ndata: null\n\n",
		"event: put\ndata: 1\n\n",
	))

	s, err := ref.Stream(context.Background(), false)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	ev, err := s.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if ev.Type != "put" {
		t.Errorf("type = %q, keep-alive should have been dropped", ev.Type)
	}
}

func TestStreamKeepAliveFriendly(t *testing.T) {
	ref := newTestRef(t, sseHandler(t,
		"event: keep-alive\ndata: null\n\n",
	))

	s, err := ref.Stream(context.Background(), true)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	ev, err := s.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if ev.Type != "keep-alive" {
		t.Errorf("type = %q, want keep-alive", ev.Type)
	}
	if ev.Data != "" {
		t.Errorf("data = %q, null payload should be empty", ev.Data)
	}
}

func TestStreamNullPayloadIsEmpty(t *testing.T) {
	ref := newTestRef(t, sseHandler(t,
		"event: put\ndata: null\n\n",
	))

	s, err := ref.Stream(context.Background(), false)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	ev, err := s.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if ev.Data != "" {
		t.Errorf("data = %q, want empty", ev.Data)
	}
}

func TestStreamRejectsBadStatus(t *testing.T) {
	ref := newTestRef(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	if _, err := ref.Stream(context.Background(), false); !errors.Is(err, ErrConnection) {
		t.Errorf("error = %v, want ErrConnection", err)
	}
}

func TestListenReturnsNilOnServerClose(t *testing.T) {
	ref := newTestRef(t, sseHandler(t,
		"event: put\ndata: 1\n\n",
		"event: put\ndata: 2\n\n",
	))

	var got []Event
	err := ref.Listen(context.Background(), func(ev Event) {
		got = append(got, ev)
	}, nil, false)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].Data != "1" || got[1].Data != "2" {
		t.Errorf("events = %+v", got)
	}
}
