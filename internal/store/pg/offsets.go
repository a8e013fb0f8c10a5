package pg

import (
	"database/sql"
	"fmt"

	"github.com/nextlevelbuilder/gateclaw/internal/store"
)

// PGOffsetStore implements store.OffsetStore backed by Postgres.
type PGOffsetStore struct {
	db *sql.DB
}

var _ store.OffsetStore = (*PGOffsetStore)(nil)

func NewPGOffsetStore(db *sql.DB) *PGOffsetStore {
	return &PGOffsetStore{db: db}
}

func (s *PGOffsetStore) LastUpdateID(channel string) (int64, error) {
	var id int64
	err := s.db.QueryRow(
		`SELECT last_update_id FROM update_offsets WHERE channel = $1`, channel,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query offset: %w", err)
	}
	return id, nil
}

// SetLastUpdateID records id for channel, never regressing the stored value.
func (s *PGOffsetStore) SetLastUpdateID(channel string, id int64) error {
	_, err := s.db.Exec(
		`INSERT INTO update_offsets (channel, last_update_id) VALUES ($1, $2)
		 ON CONFLICT (channel) DO UPDATE
		 SET last_update_id = GREATEST(update_offsets.last_update_id, EXCLUDED.last_update_id)`,
		channel, id,
	)
	if err != nil {
		return fmt.Errorf("store offset: %w", err)
	}
	return nil
}
