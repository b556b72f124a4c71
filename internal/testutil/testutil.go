// Package testutil provides shared test helpers for spinning up an
// in-process emulator and a client pointed at it.
package testutil

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/blaze/internal/emulator"
	"github.com/starford/blaze/internal/sse"
	"github.com/starford/blaze/internal/store"
	"github.com/starford/blaze/pkg/blaze"
)

// StartEmulator runs an emulator over TLS and returns a client reference
// at its root plus the backing tree for direct seeding. Everything is
// cleaned up with the test.
func StartEmulator(t *testing.T, authToken string) (*blaze.Reference, *store.Tree) {
	t.Helper()

	tree := store.New()
	broker := sse.NewBroker(100 * time.Millisecond)
	t.Cleanup(broker.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := emulator.New(tree, broker, nil, logger)

	ts := httptest.NewTLSServer(emulator.NewRouter(srv, authToken))
	t.Cleanup(ts.Close)

	var (
		ref *blaze.Reference
		err error
	)
	if authToken != "" {
		ref, err = blaze.NewWithAuth(ts.URL, authToken, blaze.WithHTTPClient(ts.Client()), blaze.WithLogger(logger))
	} else {
		ref, err = blaze.New(ts.URL, blaze.WithHTTPClient(ts.Client()), blaze.WithLogger(logger))
	}
	if err != nil {
		t.Fatalf("build reference: %v", err)
	}
	return ref, tree
}

// TestDB creates a temporary SQLite snapshot database that is
// automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()

	db, err := store.Open(t.TempDir() + "/blaze-test.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
