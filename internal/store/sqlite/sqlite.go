// Package sqlite implements the store contracts on an embedded SQLite
// database (standalone mode).
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/gateclaw/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS pairing_pending (
	channel    TEXT NOT NULL,
	sender_id  TEXT NOT NULL,
	chat_id    TEXT NOT NULL,
	code       TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (channel, sender_id)
);

CREATE TABLE IF NOT EXISTS pairing_approved (
	channel     TEXT NOT NULL,
	sender_id   TEXT NOT NULL,
	approved_at INTEGER NOT NULL,
	PRIMARY KEY (channel, sender_id)
);

CREATE TABLE IF NOT EXISTS update_offsets (
	channel        TEXT PRIMARY KEY,
	last_update_id INTEGER NOT NULL
);
`

// Open opens (creating if needed) the gateway database at dbPath.
func Open(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The sqlite driver serializes writes; one connection avoids
	// SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return db, nil
}

// NewStores creates all stores backed by SQLite.
func NewStores(dbPath string) (*store.Stores, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	return store.NewStores(NewPairingStore(db), NewOffsetStore(db), db.Close), nil
}
