package store

import (
	"path/filepath"
	"reflect"
	"testing"
)

func openTestDB(t *testing.T) (*DB, string) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "snapshot.db")
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, dsn
}

func TestSnapshotLoadEmpty(t *testing.T) {
	db, _ := openTestDB(t)

	root, err := db.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if root != nil {
		t.Errorf("root = %v, want nil before first save", root)
	}
}

func TestSnapshotSaveLoadRoundtrip(t *testing.T) {
	db, _ := openTestDB(t)

	want := map[string]any{
		"users": map[string]any{"u1": map[string]any{"name": "Ada"}},
		"count": float64(3),
	}
	if err := db.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := db.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %v, want %v", got, want)
	}
}

func TestSnapshotSaveOverwrites(t *testing.T) {
	db, _ := openTestDB(t)

	if err := db.Save(map[string]any{"v": float64(1)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := db.Save(map[string]any{"v": float64(2)}); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	got, err := db.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := map[string]any{"v": float64(2)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %v, want %v", got, want)
	}
}

func TestSnapshotSurvivesReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "snapshot.db")

	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Save(map[string]any{"kept": true}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = Open(dsn)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	got, err := db.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := map[string]any{"kept": true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Load = %v, want %v", got, want)
	}
}
