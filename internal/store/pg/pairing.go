package pg

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/gateclaw/internal/store"
)

// PGPairingStore implements store.PairingStore backed by Postgres.
type PGPairingStore struct {
	db *sql.DB
}

var _ store.PairingStore = (*PGPairingStore)(nil)

func NewPGPairingStore(db *sql.DB) *PGPairingStore {
	return &PGPairingStore{db: db}
}

// RequestPairing returns the sender's pending code, minting one only when no
// non-expired request exists. Runs in one transaction so concurrent requests
// for the same sender agree on the code.
func (s *PGPairingStore) RequestPairing(senderID, channel, chatID string) (string, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", false, fmt.Errorf("begin pairing upsert: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	cutoff := now.Add(-store.PendingTTL)

	var code string
	var createdAt time.Time
	err = tx.QueryRow(
		`SELECT code, created_at FROM pairing_pending
		 WHERE channel = $1 AND sender_id = $2 FOR UPDATE`,
		channel, senderID,
	).Scan(&code, &createdAt)
	switch {
	case err == nil && createdAt.After(cutoff):
		return code, false, tx.Commit()
	case err != nil && err != sql.ErrNoRows:
		return "", false, fmt.Errorf("query pending pairing: %w", err)
	}

	for attempt := 0; attempt < 5; attempt++ {
		code = store.GeneratePairingCode()
		_, err = tx.Exec(
			`INSERT INTO pairing_pending (channel, sender_id, chat_id, code, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (channel, sender_id) DO UPDATE
			 SET chat_id = EXCLUDED.chat_id, code = EXCLUDED.code, created_at = EXCLUDED.created_at`,
			channel, senderID, chatID, code, now,
		)
		if err == nil {
			return code, true, tx.Commit()
		}
	}
	return "", false, fmt.Errorf("insert pending pairing: %w", err)
}

func (s *PGPairingStore) IsPaired(senderID, channel string) bool {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM pairing_approved WHERE channel = $1 AND sender_id = $2`,
		channel, senderID,
	).Scan(&one)
	return err == nil
}

func (s *PGPairingStore) ListPaired(channel string) ([]store.PairedSender, error) {
	rows, err := s.db.Query(
		`SELECT channel, sender_id, approved_at FROM pairing_approved
		 WHERE ($1 = '' OR channel = $1) ORDER BY approved_at`,
		channel,
	)
	if err != nil {
		return nil, fmt.Errorf("list paired: %w", err)
	}
	defer rows.Close()

	var out []store.PairedSender
	for rows.Next() {
		var p store.PairedSender
		if err := rows.Scan(&p.Channel, &p.SenderID, &p.ApprovedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PGPairingStore) ListPending(channel string) ([]store.PendingPairing, error) {
	cutoff := time.Now().Add(-store.PendingTTL)
	rows, err := s.db.Query(
		`SELECT channel, sender_id, chat_id, code, created_at FROM pairing_pending
		 WHERE created_at > $1 AND ($2 = '' OR channel = $2) ORDER BY created_at`,
		cutoff, channel,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []store.PendingPairing
	for rows.Next() {
		var p store.PendingPairing
		if err := rows.Scan(&p.Channel, &p.SenderID, &p.ChatID, &p.Code, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Approve promotes the pending request matching code to the approved set.
func (s *PGPairingStore) Approve(code string) (*store.PendingPairing, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin approve: %w", err)
	}
	defer tx.Rollback()

	cutoff := time.Now().Add(-store.PendingTTL)
	var p store.PendingPairing
	err = tx.QueryRow(
		`SELECT channel, sender_id, chat_id, code, created_at FROM pairing_pending
		 WHERE code = $1 AND created_at > $2 FOR UPDATE`,
		code, cutoff,
	).Scan(&p.Channel, &p.SenderID, &p.ChatID, &p.Code, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no pending pairing for code %s", code)
	}
	if err != nil {
		return nil, fmt.Errorf("query pending pairing: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO pairing_approved (channel, sender_id, approved_at)
		 VALUES ($1, $2, $3) ON CONFLICT (channel, sender_id) DO NOTHING`,
		p.Channel, p.SenderID, time.Now(),
	); err != nil {
		return nil, fmt.Errorf("insert approval: %w", err)
	}
	if _, err := tx.Exec(
		`DELETE FROM pairing_pending WHERE channel = $1 AND sender_id = $2`,
		p.Channel, p.SenderID,
	); err != nil {
		return nil, fmt.Errorf("delete pending: %w", err)
	}
	return &p, tx.Commit()
}

func (s *PGPairingStore) Revoke(senderID, channel string) error {
	res, err := s.db.Exec(
		`DELETE FROM pairing_approved WHERE channel = $1 AND sender_id = $2`,
		channel, senderID,
	)
	if err != nil {
		return fmt.Errorf("revoke pairing: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sender %s not approved on %s", senderID, channel)
	}
	return nil
}
