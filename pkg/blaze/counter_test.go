package blaze

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"testing"
)

// counterServer fakes the server side of the ETag CAS protocol for a
// single stored integer.
type counterServer struct {
	mu      sync.Mutex
	value   int64
	version int

	gets       int
	writes     int // accepted conditional writes
	rejections int // 412 responses

	// rejectNext forces the next write to lose as if a concurrent writer
	// bumped the value first.
	rejectNext bool
}

func (c *counterServer) etag() string {
	return fmt.Sprintf("v%d", c.version)
}

func (c *counterServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		c.gets++
		w.Header().Set("ETag", c.etag())
		_, _ = w.Write([]byte(strconv.FormatInt(c.value, 10)))

	case http.MethodPut:
		if c.rejectNext {
			c.rejectNext = false
			c.value++ // the winning writer's effect
			c.version++
		}
		if r.Header.Get("If-Match") != c.etag() {
			c.rejections++
			w.Header().Set("ETag", c.etag())
			w.WriteHeader(http.StatusPreconditionFailed)
			_, _ = w.Write([]byte(strconv.FormatInt(c.value, 10)))
			return
		}
		body, _ := io.ReadAll(r.Body)
		n, err := strconv.ParseInt(string(body), 10, 64)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		c.value = n
		c.version++
		c.writes++
		w.Header().Set("ETag", c.etag())
		_, _ = w.Write(body)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestApplyDeltaUncontended(t *testing.T) {
	srv := &counterServer{value: 5}
	ref := newTestRef(t, srv)

	resp, err := ref.At("counter").ApplyDelta(context.Background(), 1)
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if resp.Body != "6" {
		t.Errorf("body = %q, want 6", resp.Body)
	}
	if srv.value != 6 {
		t.Errorf("stored value = %d, want 6", srv.value)
	}
	if srv.writes != 1 || srv.rejections != 0 {
		t.Errorf("writes = %d, rejections = %d, want exactly one clean write", srv.writes, srv.rejections)
	}
}

func TestApplyDeltaMaxBoundBlocksWrite(t *testing.T) {
	srv := &counterServer{value: 5}
	ref := newTestRef(t, srv)

	_, err := ref.At("counter").ApplyDelta(context.Background(), 1, WithMax(5))
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("error = %v, want ErrLimitExceeded", err)
	}
	if srv.writes != 0 && srv.rejections == 0 {
		t.Error("bound violation must not issue any write")
	}
	if srv.writes+srv.rejections != 0 {
		t.Errorf("write attempts = %d, want 0", srv.writes+srv.rejections)
	}
}

func TestApplyDeltaMaxBoundNegativeDelta(t *testing.T) {
	srv := &counterServer{value: 0}
	ref := newTestRef(t, srv)

	_, err := ref.At("counter").ApplyDelta(context.Background(), -1, WithMax(0))
	if !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("error = %v, want ErrLimitExceeded", err)
	}
}

func TestApplyDeltaMinBound(t *testing.T) {
	srv := &counterServer{value: 3}
	ref := newTestRef(t, srv)

	_, err := ref.At("counter").ApplyDelta(context.Background(), -1, WithMin(3))
	if !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("error = %v, want ErrLimitExceeded", err)
	}
	if srv.writes+srv.rejections != 0 {
		t.Errorf("write attempts = %d, want 0", srv.writes+srv.rejections)
	}
}

func TestApplyDeltaRetriesOnConflict(t *testing.T) {
	srv := &counterServer{value: 10, rejectNext: true}
	ref := newTestRef(t, srv)

	resp, err := ref.At("counter").ApplyDelta(context.Background(), 1)
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	// The concurrent writer moved 10 -> 11, then our delta lands on top.
	if resp.Body != "12" {
		t.Errorf("body = %q, want 12", resp.Body)
	}
	if srv.rejections != 1 {
		t.Errorf("rejections = %d, want 1", srv.rejections)
	}
	if srv.writes != 1 {
		t.Errorf("accepted writes = %d, want 1", srv.writes)
	}
}

func TestApplyDeltaConflictRechecksBounds(t *testing.T) {
	// The stored value starts below the bound but a concurrent writer
	// pushes it onto the bound before our write lands.
	srv := &counterServer{value: 4, rejectNext: true}
	ref := newTestRef(t, srv)

	_, err := ref.At("counter").ApplyDelta(context.Background(), 1, WithMax(5))
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("error = %v, want ErrLimitExceeded after losing the race", err)
	}
	if srv.writes != 0 {
		t.Errorf("accepted writes = %d, want 0", srv.writes)
	}
}

func TestApplyDeltaKnownStateSkipsRead(t *testing.T) {
	srv := &counterServer{value: 5}
	ref := newTestRef(t, srv)

	resp, err := ref.At("counter").ApplyDelta(context.Background(), 2, WithKnownState(5, "v0"))
	if err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	if srv.gets != 0 {
		t.Errorf("gets = %d, want 0", srv.gets)
	}
	if resp.Body != "7" {
		t.Errorf("body = %q, want 7", resp.Body)
	}
}

func TestApplyDeltaCounterDeletedDuringRetry(t *testing.T) {
	ref := newTestRef(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Header().Set("ETag", "v0")
			_, _ = w.Write([]byte("5"))
			return
		}
		// The counter vanished between the read and the write.
		w.Header().Set("ETag", "v1")
		w.WriteHeader(http.StatusPreconditionFailed)
		_, _ = w.Write([]byte("null"))
	}))

	if _, err := ref.ApplyDelta(context.Background(), 1); !errors.Is(err, ErrNotFoundOrNull) {
		t.Errorf("error = %v, want ErrNotFoundOrNull", err)
	}
}

func TestApplyDeltaNonIntegerValue(t *testing.T) {
	ref := newTestRef(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("ETag", "v0")
		_, _ = w.Write([]byte(`"not a number"`))
	}))

	if _, err := ref.ApplyDelta(context.Background(), 1); !errors.Is(err, ErrNotJSON) {
		t.Errorf("error = %v, want ErrNotJSON", err)
	}
}
