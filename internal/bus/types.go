package bus

import "context"

// InboundMessage represents a message received from a channel (Telegram, Discord, etc.)
type InboundMessage struct {
	Channel  string `json:"channel"`
	SenderID string `json:"sender_id"`
	ChatID   string `json:"chat_id"`
	Content  string `json:"content"`

	// UpdateID is the platform's monotonic sequence number for this update
	// (Telegram update_id). Zero when the platform provides none.
	UpdateID int64 `json:"update_id,omitempty"`

	// Fingerprint identifies one delivery for dedupe. Channels set it to the
	// platform delivery id, or to a content hash when no id exists.
	Fingerprint string `json:"fingerprint,omitempty"`

	PeerKind      string            `json:"peer_kind,omitempty"` // "direct" or "group"
	SenderHandle  string            `json:"sender_handle,omitempty"`
	ThreadID      int               `json:"thread_id,omitempty"`      // forum topic id (0 = none)
	ThreadCapable bool              `json:"thread_capable,omitempty"` // chat supports sub-threads
	MentionsBot   bool              `json:"mentions_bot,omitempty"`
	HistoryLimit  int               `json:"history_limit,omitempty"` // max turns kept as context (0=disabled)
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	ThreadID int               `json:"thread_id,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"` // channel-specific metadata
}

// MessageHandler handles an inbound message from a specific channel.
type MessageHandler func(InboundMessage) error

// MessageRouter abstracts inbound/outbound message routing between channels
// and the routing core.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
