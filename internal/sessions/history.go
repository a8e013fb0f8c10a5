package sessions

import (
	"sync"
	"time"
)

// HistoryEntry is one retained conversation turn.
type HistoryEntry struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Sender    string    `json:"sender,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryBuffer keeps a bounded, ordered log of recent turns per
// conversation key. All participants of a group/topic share one log.
// The retention limit is supplied per Append call: channels carry
// different caps, and a conversation's cap can change on config reload.
// A limit of 0 disables retention entirely (Append becomes a no-op), the
// usual setting for high-volume group chats.
//
// Mutating access is expected to funnel through the per-key serialization
// of the scheduler, but the buffer carries its own lock so reads from other
// goroutines (CLI, diagnostics) stay safe.
type HistoryBuffer struct {
	mu      sync.RWMutex
	entries map[ConversationKey][]HistoryEntry
}

// NewHistoryBuffer creates an empty buffer.
func NewHistoryBuffer() *HistoryBuffer {
	return &HistoryBuffer{
		entries: make(map[ConversationKey][]HistoryEntry),
	}
}

// Append records an entry, evicting the oldest when the key holds limit
// entries. A limit of 0 or less retains nothing.
func (h *HistoryBuffer) Append(key ConversationKey, entry HistoryEntry, limit int) {
	if limit <= 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	log := append(h.entries[key], entry)
	if len(log) > limit {
		log = log[len(log)-limit:]
	}
	h.entries[key] = log
}

// Read returns the retained entries for key, oldest first.
func (h *HistoryBuffer) Read(key ConversationKey) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	log, ok := h.entries[key]
	if !ok {
		return nil
	}
	out := make([]HistoryEntry, len(log))
	copy(out, log)
	return out
}

// Clear drops all retained entries for key.
func (h *HistoryBuffer) Clear(key ConversationKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, key)
}
