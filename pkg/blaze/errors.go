package blaze

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the client. Callers branch with errors.Is;
// there is no default-value substitution for any failure.
var (
	// ErrNotHTTPS is returned when a reference URL does not use https.
	ErrNotHTTPS = errors.New("the url scheme must be https")

	// ErrNotFoundOrNull is returned when a successful read carries the
	// literal body "null": the record does not exist.
	ErrNotFoundOrNull = errors.New("body is null or record is not found")

	// ErrSerialize is returned when a write is attempted without a body.
	ErrSerialize = errors.New("request body is required")

	// ErrNetwork covers transport failures and unexpected statuses.
	ErrNetwork = errors.New("network error")

	// ErrNotJSON is returned when a response body cannot be decoded.
	ErrNotJSON = errors.New("invalid json")

	// ErrUTF8 is returned when a response body is not valid UTF-8.
	ErrUTF8 = errors.New("response body is not valid utf-8")

	// ErrLimitExceeded is returned when an atomic update would cross a
	// caller-supplied bound. No write is attempted.
	ErrLimitExceeded = errors.New("counter limit exceeded")

	// ErrConnection covers event stream transport failures.
	ErrConnection = errors.New("stream connection error")
)

// URLError reports a reference URL that could not be parsed.
type URLError struct {
	Raw string
	Err error
}

func (e *URLError) Error() string {
	return fmt.Sprintf("parse url %q: %v", e.Raw, e.Err)
}

func (e *URLError) Unwrap() error { return e.Err }

// StatusError is an ErrNetwork carrying the unexpected HTTP status code.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("network error: unexpected status %d", e.Code)
}

func (e *StatusError) Unwrap() error { return ErrNetwork }
