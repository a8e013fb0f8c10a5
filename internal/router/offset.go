package router

import (
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/gateclaw/internal/store"
)

// UpdateOffset tracks the highest admitted update sequence per channel.
// Events carrying a sequence at or below the recorded value are stale
// redeliveries and are rejected before the dedupe cache sees them.
//
// The recorded value only ever increases; advances are reported to the
// persistence collaborator so restarts resume past already-handled updates.
// Safe for concurrent use.
type UpdateOffset struct {
	mu    sync.Mutex
	last  map[string]int64
	store store.OffsetStore // optional
}

// NewUpdateOffset creates a tracker reporting advances to s (nil for none).
func NewUpdateOffset(s store.OffsetStore) *UpdateOffset {
	return &UpdateOffset{
		last:  make(map[string]int64),
		store: s,
	}
}

// Load seeds the in-memory offset for channel from the store.
func (o *UpdateOffset) Load(channel string) error {
	if o.store == nil {
		return nil
	}
	id, err := o.store.LastUpdateID(channel)
	if err != nil {
		return err
	}
	o.mu.Lock()
	if id > o.last[channel] {
		o.last[channel] = id
	}
	o.mu.Unlock()
	return nil
}

// Last returns the recorded offset for channel (0 when none).
func (o *UpdateOffset) Last(channel string) int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last[channel]
}

// IsStale reports whether seq was already processed. A zero sequence means
// the platform provides none; such events are never stale.
func (o *UpdateOffset) IsStale(channel string, seq int64) bool {
	if seq <= 0 {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return seq <= o.last[channel]
}

// Advance records seq for channel after an admitted event. Lower or equal
// sequences are ignored, keeping the offset monotonic.
func (o *UpdateOffset) Advance(channel string, seq int64) {
	if seq <= 0 {
		return
	}
	o.mu.Lock()
	if seq <= o.last[channel] {
		o.mu.Unlock()
		return
	}
	o.last[channel] = seq
	o.mu.Unlock()

	if o.store != nil {
		if err := o.store.SetLastUpdateID(channel, seq); err != nil {
			slog.Warn("offset: persist failed", "channel", channel, "update_id", seq, "error", err)
		}
	}
}
