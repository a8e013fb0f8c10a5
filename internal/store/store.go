// Package store defines the durable-state contracts of the gateway:
// pairing approvals and update offsets. Two backends exist, sqlite for
// standalone deployments and pg for managed ones, both honoring the same
// atomicity rules (idempotent pairing upsert, monotonic offsets).
package store

import (
	"math/rand"
	"time"
)

// PendingPairing is an unapproved pairing request. A sender has at most one
// non-expired request per channel; repeated requests return the same code.
type PendingPairing struct {
	SenderID  string
	Channel   string
	ChatID    string
	Code      string
	CreatedAt time.Time
}

// PairedSender is an operator-approved sender.
type PairedSender struct {
	SenderID   string
	Channel    string
	ApprovedAt time.Time
}

// PendingTTL is how long a pairing code stays valid before a fresh request
// mints a new one.
const PendingTTL = time.Hour

// PairingStore manages pairing requests and approvals.
//
// RequestPairing is atomic and idempotent: when a non-expired pending
// request exists for (senderID, channel) it returns the existing code with
// created=false; concurrent upserts for the same sender must never yield
// two different codes.
type PairingStore interface {
	RequestPairing(senderID, channel, chatID string) (code string, created bool, err error)
	IsPaired(senderID, channel string) bool
	ListPaired(channel string) ([]PairedSender, error)
	ListPending(channel string) ([]PendingPairing, error)

	// Approve promotes the pending request matching code, returning it so
	// the caller can notify the sender's chat.
	Approve(code string) (*PendingPairing, error)

	// Revoke removes an approved sender.
	Revoke(senderID, channel string) error
}

// OffsetStore persists the highest processed update sequence per channel
// account so restarts skip already-handled updates.
type OffsetStore interface {
	LastUpdateID(channel string) (int64, error)
	SetLastUpdateID(channel string, id int64) error
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Pairing PairingStore
	Offsets OffsetStore

	closer func() error
}

// NewStores bundles backends with an optional close hook.
func NewStores(pairing PairingStore, offsets OffsetStore, closer func() error) *Stores {
	return &Stores{Pairing: pairing, Offsets: offsets, closer: closer}
}

// Close releases the underlying database handle, if any.
func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// pairingCodeAlphabet omits ambiguous characters (0/O, 1/I/L); codes are
// read aloud and typed by a human once.
const pairingCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// PairingCodeLength is the length of generated pairing codes.
const PairingCodeLength = 8

// GeneratePairingCode mints a short human-typable code. Collision
// resistance within the pending set is enforced by the store's unique
// constraint, not here; cryptographic strength is not required.
func GeneratePairingCode() string {
	b := make([]byte, PairingCodeLength)
	for i := range b {
		b[i] = pairingCodeAlphabet[rand.Intn(len(pairingCodeAlphabet))]
	}
	return string(b)
}
