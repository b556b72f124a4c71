// Package etag derives version tokens for stored values.
package etag

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Compute returns the hex-encoded SHA-256 digest of the canonical JSON
// encoding of v. encoding/json writes map keys in sorted order, so equal
// values always produce equal tags.
func Compute(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
