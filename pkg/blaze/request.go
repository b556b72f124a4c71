package blaze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf8"
)

// etagRequestHeader asks the server to include the stored value's ETag in
// the response.
const etagRequestHeader = "X-Firebase-ETag"

// Response is the outcome of one request: the raw body text, carried
// verbatim for the caller to parse, and the value's ETag when one was
// requested or a conditional write was rejected.
type Response struct {
	StatusCode int
	Body       string
	ETag       string
}

// send issues exactly one HTTP call and classifies the result. It never
// retries; the atomic counter loop layers retries on top.
//
// A 412 response is an error unless ifMatch was supplied: a rejected
// conditional write is a successful response carrying the server's
// current value and its fresh ETag.
func (r *Reference) send(ctx context.Context, method string, body any, wantETag bool, ifMatch string) (*Response, error) {
	var reqBody io.Reader
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		if body == nil {
			return nil, ErrSerialize
		}
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.uri.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if wantETag {
		req.Header.Set(etagRequestHeader, "true")
	}
	if ifMatch != "" {
		req.Header.Set("If-Match", ifMatch)
	}

	resp, err := r.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}
	if !utf8.Valid(raw) {
		return nil, ErrUTF8
	}

	r.log().Debug("request completed",
		slog.String("method", method),
		slog.String("url", r.uri.Redacted()),
		slog.Int("status", resp.StatusCode))

	out := &Response{
		StatusCode: resp.StatusCode,
		Body:       string(raw),
		ETag:       resp.Header.Get("ETag"),
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent:
	case resp.StatusCode == http.StatusPreconditionFailed && ifMatch != "":
		// Conditional write lost the race. The body holds the current
		// value and the ETag header its version; callers retry from both.
	default:
		return nil, &StatusError{Code: resp.StatusCode}
	}

	if method == http.MethodGet && out.Body == "null" {
		return nil, ErrNotFoundOrNull
	}
	if method == http.MethodDelete {
		out.Body = ""
	}
	return out, nil
}
