// Package store holds the emulator's document tree: a path-addressed
// JSON value with per-node version tags, optional SQLite snapshots, and a
// seed-file reloader.
package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/starford/blaze/internal/etag"
)

// Tree is the in-memory document tree. Values are decoded JSON
// (map[string]any, []any, float64, string, bool, nil). All methods are
// safe for concurrent use.
type Tree struct {
	mu   sync.RWMutex
	root any
	seq  uint64
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

// splitPath turns "/users/u1/" into ["users", "u1"]. The root path yields
// an empty slice.
func splitPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(strings.Trim(path, "/"), "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

// lookup walks to the node at path. Callers must hold t.mu.
func (t *Tree) lookup(path string) (any, bool) {
	node := t.root
	for _, seg := range splitPath(path) {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	if node == nil {
		return nil, false
	}
	return node, true
}

// Get returns a deep copy of the value stored at path and whether it
// exists. A missing node reports (nil, false). Copying keeps readers
// isolated from concurrent writes.
func (t *Tree) Get(path string) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.lookup(path)
	if !ok {
		return nil, false
	}
	return deepCopy(node), true
}

// GetWithETag returns the value at path together with its version tag,
// both taken from one tree state. A value paired with a tag from a later
// state would let a conditional write based on the pair silently
// overwrite a concurrent update.
func (t *Tree) GetWithETag(path string) (any, string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, ok := t.lookup(path)
	if !ok {
		return nil, etag.Compute(nil), false
	}
	return deepCopy(node), etag.Compute(node), true
}

func deepCopy(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// ETag returns the version tag of the value at path. Missing nodes have a
// stable tag too (the tag of null), so conditional writes can guard
// creation.
func (t *Tree) ETag(path string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	node, _ := t.lookup(path)
	return etag.Compute(node)
}

// Put replaces the value at path, creating intermediate nodes as needed.
// Putting nil deletes the node.
func (t *Tree) Put(path string, value any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if value == nil {
		t.deleteLocked(path)
		return
	}

	segs := splitPath(path)
	if len(segs) == 0 {
		t.root = value
		return
	}

	m, ok := t.root.(map[string]any)
	if !ok {
		m = map[string]any{}
		t.root = m
	}
	for _, seg := range segs[:len(segs)-1] {
		child, ok := m[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[seg] = child
		}
		m = child
	}
	m[segs[len(segs)-1]] = value
}

// Patch merges fields into the object at path. Non-object values at path
// are replaced by a fresh object first. A nil field value deletes that
// field.
func (t *Tree) Patch(path string, fields map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	segs := splitPath(path)

	m, ok := t.root.(map[string]any)
	if !ok {
		m = map[string]any{}
		t.root = m
	}
	for _, seg := range segs {
		child, ok := m[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[seg] = child
		}
		m = child
	}

	for k, v := range fields {
		if v == nil {
			delete(m, k)
			continue
		}
		m[k] = v
	}
}

// Push stores value under a generated, time-ordered child key of path and
// returns the key.
func (t *Tree) Push(path string, value any) string {
	t.mu.Lock()
	t.seq++
	key := fmt.Sprintf("-%012x%04d", time.Now().UnixMilli(), t.seq%10000)
	t.mu.Unlock()

	t.Put(strings.TrimRight(path, "/")+"/"+key, value)
	return key
}

// Delete removes the value at path and prunes any parents left empty.
func (t *Tree) Delete(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deleteLocked(path)
}

func (t *Tree) deleteLocked(path string) {
	segs := splitPath(path)
	if len(segs) == 0 {
		t.root = nil
		return
	}

	// Walk down, remembering the chain for pruning.
	type hop struct {
		m   map[string]any
		key string
	}
	var chain []hop

	node := t.root
	for _, seg := range segs {
		m, ok := node.(map[string]any)
		if !ok {
			return
		}
		chain = append(chain, hop{m: m, key: seg})
		node, ok = m[seg]
		if !ok {
			return
		}
	}

	for i := len(chain) - 1; i >= 0; i-- {
		delete(chain[i].m, chain[i].key)
		if len(chain[i].m) > 0 {
			break
		}
	}
	if m, ok := t.root.(map[string]any); ok && len(m) == 0 {
		t.root = nil
	}
}

// Export returns a deep copy of the whole tree (nil when empty).
func (t *Tree) Export() any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.root == nil {
		return nil
	}
	return deepCopy(t.root)
}

// Replace swaps in a new root, used by snapshot loading and seed reloads.
func (t *Tree) Replace(root any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = root
}
