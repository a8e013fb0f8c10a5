package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/gateclaw/internal/store"
)

// PairingStore implements store.PairingStore on SQLite.
type PairingStore struct {
	db *sql.DB
}

// NewPairingStore wraps an open database.
func NewPairingStore(db *sql.DB) *PairingStore {
	return &PairingStore{db: db}
}

// RequestPairing returns the sender's pending code, minting one only when
// no non-expired request exists. The whole detect-or-create runs in one
// transaction so concurrent requests for the same sender agree on the code.
func (s *PairingStore) RequestPairing(senderID, channel, chatID string) (string, bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", false, fmt.Errorf("begin pairing upsert: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	cutoff := now.Add(-store.PendingTTL).Unix()

	var code string
	var createdAt int64
	err = tx.QueryRow(
		`SELECT code, created_at FROM pairing_pending WHERE channel = ? AND sender_id = ?`,
		channel, senderID,
	).Scan(&code, &createdAt)
	switch {
	case err == nil && createdAt > cutoff:
		return code, false, tx.Commit()
	case err != nil && err != sql.ErrNoRows:
		return "", false, fmt.Errorf("query pending pairing: %w", err)
	}

	// New or expired request: mint a code, retrying on the (unlikely)
	// unique-constraint collision within the pending set.
	for attempt := 0; attempt < 5; attempt++ {
		code = store.GeneratePairingCode()
		_, err = tx.Exec(
			`INSERT INTO pairing_pending (channel, sender_id, chat_id, code, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (channel, sender_id) DO UPDATE
			 SET chat_id = excluded.chat_id, code = excluded.code, created_at = excluded.created_at`,
			channel, senderID, chatID, code, now.Unix(),
		)
		if err == nil {
			return code, true, tx.Commit()
		}
	}
	return "", false, fmt.Errorf("insert pending pairing: %w", err)
}

// IsPaired reports whether the sender was approved for the channel.
func (s *PairingStore) IsPaired(senderID, channel string) bool {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM pairing_approved WHERE channel = ? AND sender_id = ?`,
		channel, senderID,
	).Scan(&one)
	return err == nil
}

// ListPaired returns approved senders, all channels when channel is "".
func (s *PairingStore) ListPaired(channel string) ([]store.PairedSender, error) {
	rows, err := s.db.Query(
		`SELECT channel, sender_id, approved_at FROM pairing_approved
		 WHERE (? = '' OR channel = ?) ORDER BY approved_at`,
		channel, channel,
	)
	if err != nil {
		return nil, fmt.Errorf("list paired: %w", err)
	}
	defer rows.Close()

	var out []store.PairedSender
	for rows.Next() {
		var p store.PairedSender
		var at int64
		if err := rows.Scan(&p.Channel, &p.SenderID, &at); err != nil {
			return nil, err
		}
		p.ApprovedAt = time.Unix(at, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPending returns non-expired pending requests, all channels when
// channel is "".
func (s *PairingStore) ListPending(channel string) ([]store.PendingPairing, error) {
	cutoff := time.Now().Add(-store.PendingTTL).Unix()
	rows, err := s.db.Query(
		`SELECT channel, sender_id, chat_id, code, created_at FROM pairing_pending
		 WHERE created_at > ? AND (? = '' OR channel = ?) ORDER BY created_at`,
		cutoff, channel, channel,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []store.PendingPairing
	for rows.Next() {
		var p store.PendingPairing
		var at int64
		if err := rows.Scan(&p.Channel, &p.SenderID, &p.ChatID, &p.Code, &at); err != nil {
			return nil, err
		}
		p.CreatedAt = time.Unix(at, 0)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Approve promotes the pending request matching code to the approved set.
func (s *PairingStore) Approve(code string) (*store.PendingPairing, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin approve: %w", err)
	}
	defer tx.Rollback()

	cutoff := time.Now().Add(-store.PendingTTL).Unix()
	var p store.PendingPairing
	var at int64
	err = tx.QueryRow(
		`SELECT channel, sender_id, chat_id, code, created_at FROM pairing_pending
		 WHERE code = ? AND created_at > ?`,
		code, cutoff,
	).Scan(&p.Channel, &p.SenderID, &p.ChatID, &p.Code, &at)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no pending pairing for code %s", code)
	}
	if err != nil {
		return nil, fmt.Errorf("query pending pairing: %w", err)
	}
	p.CreatedAt = time.Unix(at, 0)

	if _, err := tx.Exec(
		`INSERT INTO pairing_approved (channel, sender_id, approved_at)
		 VALUES (?, ?, ?) ON CONFLICT (channel, sender_id) DO NOTHING`,
		p.Channel, p.SenderID, time.Now().Unix(),
	); err != nil {
		return nil, fmt.Errorf("insert approval: %w", err)
	}
	if _, err := tx.Exec(
		`DELETE FROM pairing_pending WHERE channel = ? AND sender_id = ?`,
		p.Channel, p.SenderID,
	); err != nil {
		return nil, fmt.Errorf("delete pending: %w", err)
	}
	return &p, tx.Commit()
}

// Revoke removes an approved sender.
func (s *PairingStore) Revoke(senderID, channel string) error {
	res, err := s.db.Exec(
		`DELETE FROM pairing_approved WHERE channel = ? AND sender_id = ?`,
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
