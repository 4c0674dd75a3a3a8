// Package archive persists captured snapshots to a local SQLite database so
// they survive agent restarts and can be browsed after the debuggee exits.
package archive

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/chazu/loupe/wire"
)

// ErrSnapshotNotFound indicates the requested snapshot doesn't exist.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Archive stores snapshots as canonical CBOR blobs keyed by snapshot ID.
type Archive struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens (and if needed creates) the snapshot database at dbPath.
func Open(dbPath string) (*Archive, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		created_unix_ms INTEGER NOT NULL,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Archive{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Store persists a snapshot, replacing any previous snapshot with the same ID.
func (a *Archive) Store(snap *wire.Snapshot) error {
	data, err := wire.MarshalSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_, err = a.db.Exec(
		"INSERT OR REPLACE INTO snapshots (id, created_unix_ms, data) VALUES (?, ?, ?)",
		snap.ID, snap.CreatedUnixMs, data,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// Load retrieves a snapshot by ID.
func (a *Archive) Load(id string) (*wire.Snapshot, error) {
	var data []byte
	err := a.db.QueryRow("SELECT data FROM snapshots WHERE id = ?", id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	return wire.UnmarshalSnapshot(data)
}

// Delete removes a snapshot. Deleting an unknown ID is not an error.
func (a *Archive) Delete(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.db.Exec("DELETE FROM snapshots WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}

// List returns all stored snapshot IDs, newest first.
func (a *Archive) List() ([]string, error) {
	rows, err := a.db.Query("SELECT id FROM snapshots ORDER BY created_unix_ms DESC, id")
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
