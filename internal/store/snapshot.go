package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS snapshot (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// DB persists tree snapshots in SQLite so an emulator restart keeps its
// data. A single row holds the JSON encoding of the whole tree.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Load returns the persisted tree root, or (nil, nil) when no snapshot
// has been saved yet.
func (db *DB) Load() (any, error) {
	var data string
	err := db.conn.QueryRow(`SELECT data FROM snapshot WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load snapshot: %w", err)
	}

	var root any
	if err := json.Unmarshal([]byte(data), &root); err != nil {
		return nil, fmt.Errorf("store: decode snapshot: %w", err)
	}
	return root, nil
}

// Save upserts the current tree root as the snapshot row.
func (db *DB) Save(root any) error {
	data, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("store: encode snapshot: %w", err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO snapshot (id, data, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			data       = excluded.data,
			updated_at = excluded.updated_at
	`, string(data))
	if err != nil {
		return fmt.Errorf("store: save snapshot: %w", err)
	}
	return nil
}
