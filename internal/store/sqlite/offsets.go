package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/nextlevelbuilder/gateclaw/internal/store"
)

// OffsetStore implements store.OffsetStore on SQLite.
type OffsetStore struct {
	db *sql.DB
}

var _ store.OffsetStore = (*OffsetStore)(nil)

// NewOffsetStore wraps an open database.
func NewOffsetStore(db *sql.DB) *OffsetStore {
	return &OffsetStore{db: db}
}

// LastUpdateID returns the highest recorded update id for channel
// (0 when none recorded yet).
func (s *OffsetStore) LastUpdateID(channel string) (int64, error) {
	var id int64
	err := s.db.QueryRow(
		`SELECT last_update_id FROM update_offsets WHERE channel = ?`, channel,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query offset: %w", err)
	}
	return id, nil
}

// SetLastUpdateID records id for channel. The MAX guard keeps the stored
// offset monotonic even if callers race.
func (s *OffsetStore) SetLastUpdateID(channel string, id int64) error {
	_, err := s.db.Exec(
		`INSERT INTO update_offsets (channel, last_update_id) VALUES (?, ?)
		 ON CONFLICT (channel) DO UPDATE
		 SET last_update_id = MAX(last_update_id, excluded.last_update_id)`,
		channel, id,
	)
	if err != nil {
		return fmt.Errorf("store offset: %w", err)
	}
	return nil
}
