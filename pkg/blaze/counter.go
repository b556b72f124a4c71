package blaze

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// counterState is the transient state of one ApplyDelta call chain: the
// caller's bounds plus the most recently observed value and ETag. It is
// never shared across calls.
type counterState struct {
	min, max *int64

	current int64
	etag    string
	known   bool
}

// CounterOption configures an ApplyDelta call.
type CounterOption func(*counterState)

// WithMin fails the update with ErrLimitExceeded when the stored value
// already sits at min.
func WithMin(v int64) CounterOption {
	return func(s *counterState) {
		s.min = &v
	}
}

// WithMax fails the update with ErrLimitExceeded when applying the delta
// would move the stored value past max (at or above max for a positive
// delta, at or below it for a negative one).
func WithMax(v int64) CounterOption {
	return func(s *counterState) {
		s.max = &v
	}
}

// WithKnownState seeds the loop with a value and ETag observed earlier,
// skipping the initial read.
func WithKnownState(current int64, etag string) CounterOption {
	return func(s *counterState) {
		s.current = current
		s.etag = etag
		s.known = true
	}
}

// ApplyDelta adds delta to the integer stored at the reference, safely
// under concurrent writers. Writes are guarded by an If-Match
// precondition; when another writer wins the race the server rejects the
// write and returns its current value and ETag, and the loop retries from
// those. Retries are unbounded: the call returns only on a successful
// conditional write, a bound violation, or a transport failure. Cancel
// ctx to abandon a contended update.
//
// Bounds are validated against the stored value before every write
// attempt, so a bound violation never issues a write.
func (r *Reference) ApplyDelta(ctx context.Context, delta int64, opts ...CounterOption) (*Response, error) {
	var state counterState
	for _, opt := range opts {
		opt(&state)
	}

	if !state.known {
		resp, err := r.send(ctx, http.MethodGet, nil, true, "")
		if err != nil {
			return nil, err
		}
		state.current, err = parseCounter(resp.Body)
		if err != nil {
			return nil, err
		}
		state.etag = resp.ETag
	}

	for {
		if err := state.checkBounds(delta); err != nil {
			return nil, err
		}

		resp, err := r.send(ctx, http.MethodPut, state.current+delta, true, state.etag)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusPreconditionFailed {
			return resp, nil
		}

		// Another writer won the race; adopt its value and retry.
		state.current, err = parseCounter(resp.Body)
		if err != nil {
			return nil, err
		}
		state.etag = resp.ETag
		r.log().Debug("counter update contended, retrying",
			slog.String("url", r.uri.Redacted()),
			slog.Int64("current", state.current))
	}
}

func (s *counterState) checkBounds(delta int64) error {
	if s.max != nil {
		if (delta > 0 && s.current >= *s.max) || (delta < 0 && s.current <= *s.max) {
			return ErrLimitExceeded
		}
	}
	if s.min != nil && s.current == *s.min {
		return ErrLimitExceeded
	}
	return nil
}

func parseCounter(body string) (int64, error) {
	body = strings.TrimSpace(body)
	// A rejected conditional write reports the current value; "null"
	// means the counter was deleted under us.
	if body == "null" {
		return 0, ErrNotFoundOrNull
	}
	n, err := strconv.ParseInt(body, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: counter value %q is not an integer", ErrNotJSON, body)
	}
	return n, nil
}
