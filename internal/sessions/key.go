// Package sessions handles conversation key derivation and per-conversation
// state.
//
// Conversation keys follow the canonical format:
//
//	DM / plain group:  {channel}:{chatId}
//	Forum topic:       {channel}:{chatId}:topic:{topicId}
//	Unknown chat:      {channel}:unknown
//
// Examples:
//
//	telegram:386246614
//	telegram:-100123456:topic:99
//	telegram:-100123456:topic:1   (forum message without an explicit topic)
package sessions

import (
	"fmt"
	"log/slog"
	"strings"
)

// PeerKind distinguishes DM from group conversations.
type PeerKind string

const (
	PeerDirect PeerKind = "direct"
	PeerGroup  PeerKind = "group"
)

// GeneralTopicID is the fixed id of the "General" topic in forum chats.
// Forum messages carrying no explicit topic id still belong to General, so
// they serialize against this slot rather than the whole chat. The platform
// guarantees real topic ids never collide with it.
const GeneralTopicID = 1

// ConversationKey identifies one chat, or one topic within a forum chat.
// Events sharing a key are processed strictly one at a time.
type ConversationKey string

// ResolveKey derives the conversation key for an inbound event.
//
//   - Thread-capable chat with an explicit topic: {channel}:{chatId}:topic:{id}
//   - Thread-capable chat without a topic: collapses onto the General topic
//   - Plain chat: {channel}:{chatId}
//   - Undeterminable chat identity: {channel}:unknown; the channel degrades
//     to global serialization, logged so the condition is never silent.
func ResolveKey(channel, chatID string, threadCapable bool, threadID int) ConversationKey {
	if chatID == "" {
		slog.Warn("conversation key: chat identity unknown, serializing channel globally",
			"channel", channel)
		return ConversationKey(channel + ":unknown")
	}
	if threadCapable {
		if threadID <= 0 {
			threadID = GeneralTopicID
		}
		return ConversationKey(fmt.Sprintf("%s:%s:topic:%d", channel, chatID, threadID))
	}
	return ConversationKey(channel + ":" + chatID)
}

// Channel returns the channel component of a key.
func (k ConversationKey) Channel() string {
	if idx := strings.IndexByte(string(k), ':'); idx > 0 {
		return string(k)[:idx]
	}
	return string(k)
}

// ChatID returns the chat component of a key ("" for unknown-chat keys).
func (k ConversationKey) ChatID() string {
	parts := strings.SplitN(string(k), ":", 3)
	if len(parts) < 2 || parts[1] == "unknown" {
		return ""
	}
	return parts[1]
}

// TopicID returns the topic component of a key, or 0 when the key has none.
func (k ConversationKey) TopicID() int {
	idx := strings.Index(string(k), ":topic:")
	if idx < 0 {
		return 0
	}
	var id int
	fmt.Sscanf(string(k)[idx+len(":topic:"):], "%d", &id)
	return id
}

// PeerKindFromGroup returns PeerGroup if isGroup is true, PeerDirect otherwise.
func PeerKindFromGroup(isGroup bool) PeerKind {
	if isGroup {
		return PeerGroup
	}
	return PeerDirect
}
