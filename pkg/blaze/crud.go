package blaze

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Get reads the value stored at the reference. A stored value of null is
// reported as ErrNotFoundOrNull, never as data.
func (r *Reference) Get(ctx context.Context) (*Response, error) {
	return r.send(ctx, http.MethodGet, nil, false, "")
}

// GetAs reads the value stored at ref and decodes it into T.
func GetAs[T any](ctx context.Context, ref *Reference) (T, error) {
	var out T
	resp, err := ref.Get(ctx)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(resp.Body), &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrNotJSON, err)
	}
	return out, nil
}

// Push appends value under a server-generated child key (POST). The
// response body carries the generated key.
func (r *Reference) Push(ctx context.Context, value any) (*Response, error) {
	return r.send(ctx, http.MethodPost, value, false, "")
}

// Set replaces the value stored at the reference (PUT).
func (r *Reference) Set(ctx context.Context, value any) (*Response, error) {
	return r.send(ctx, http.MethodPut, value, false, "")
}

// Update merges the given fields into the value stored at the reference
// (PATCH). Fields not named in value are left untouched.
func (r *Reference) Update(ctx context.Context, value any) (*Response, error) {
	return r.send(ctx, http.MethodPatch, value, false, "")
}

// Delete removes the value stored at the reference. Success yields an
// empty body.
func (r *Reference) Delete(ctx context.Context) (*Response, error) {
	return r.send(ctx, http.MethodDelete, nil, false, "")
}
