package telegram

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/gateclaw/internal/bus"
	"github.com/nextlevelbuilder/gateclaw/internal/channels"
	"github.com/nextlevelbuilder/gateclaw/internal/sessions"
)

// handleMessage adapts one incoming Telegram update into a bus message.
// Access control and mention gating are the router's job; the binding
// only extracts what the gates need (sender, peer kind, topic, mention).
func (c *Channel) handleMessage(ctx context.Context, update telego.Update) {
	message := update.Message
	if message == nil {
		return
	}

	// Skip service messages (member added/removed, title changed, etc.).
	// They have no text or caption and would reach the agent as empty turns.
	if isServiceMessage(message) {
		slog.Debug("telegram service message skipped",
			"chat_id", message.Chat.ID,
			"new_members", len(message.NewChatMembers),
			"left_member", message.LeftChatMember != nil,
		)
		return
	}

	user := message.From
	if user == nil {
		return
	}

	userID := fmt.Sprintf("%d", user.ID)
	senderID := userID
	if user.Username != "" {
		senderID = fmt.Sprintf("%s|%s", userID, user.Username)
	}

	isGroup := message.Chat.Type == "group" || message.Chat.Type == "supergroup"

	// Forum detection. For non-forum groups message_thread_id is reply
	// context, not a topic, and is ignored. Forum messages without a
	// thread id belong to the General topic.
	isForum := isGroup && message.Chat.IsForum
	messageThreadID := 0
	if isForum {
		messageThreadID = message.MessageThreadID
		if messageThreadID == 0 {
			messageThreadID = sessions.GeneralTopicID
		}
	}

	if c.handleBotCommand(ctx, message, messageThreadID) {
		return
	}

	content := message.Text
	if message.Caption != "" {
		if content != "" {
			content += "\n"
		}
		content += message.Caption
	}
	if content == "" {
		content = "[empty message]"
	}

	mentioned := false
	if isGroup {
		mentioned = c.detectMention(message, c.bot.Username())
	}

	chatIDStr := fmt.Sprintf("%d", message.Chat.ID)

	slog.Debug("telegram message received",
		"chat_type", message.Chat.Type,
		"chat_id", chatIDStr,
		"user_id", userID,
		"username", user.Username,
		"update_id", update.UpdateID,
		"mentions_bot", mentioned,
		"preview", channels.Truncate(content, 60),
	)

	metadata := map[string]string{
		"message_id": fmt.Sprintf("%d", message.MessageID),
		"user_id":    userID,
		"first_name": user.FirstName,
	}
	if user.Username != "" {
		metadata["username"] = user.Username
	}
	if isForum {
		metadata["is_forum"] = "true"
	}

	c.Bus().PublishInbound(bus.InboundMessage{
		Channel:       c.Name(),
		SenderID:      senderID,
		ChatID:        chatIDStr,
		Content:       content,
		UpdateID:      int64(update.UpdateID),
		Fingerprint:   messageFingerprint(chatIDStr, message.MessageID, content),
		PeerKind:      string(sessions.PeerKindFromGroup(isGroup)),
		SenderHandle:  user.Username,
		ThreadID:      messageThreadID,
		ThreadCapable: isForum,
		MentionsBot:   mentioned,
		HistoryLimit:  c.config.HistoryLimit,
		Metadata:      metadata,
	})
}

// messageFingerprint identifies one delivery for dedupe. Telegram message
// ids are only unique per chat, so the chat id is part of the key; the
// content hash catches edited redeliveries of the same id.
func messageFingerprint(chatID string, messageID int, content string) string {
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("telegram:%s:%d:%s", chatID, messageID, hex.EncodeToString(sum[:8]))
}

// detectMention checks if a Telegram message mentions the bot. Both text
// entities and caption entities are checked (photos carry Caption, not
// Text). A reply to one of the bot's own messages counts as an implicit
// mention.
func (c *Channel) detectMention(msg *telego.Message, botUsername string) bool {
	if botUsername == "" {
		return false
	}
	lowerBot := strings.ToLower(botUsername)

	for _, pair := range []struct {
		entities []telego.MessageEntity
		text     string
	}{
		{msg.Entities, msg.Text},
		{msg.CaptionEntities, msg.Caption},
	} {
		if pair.text == "" {
			continue
		}
		for _, entity := range pair.entities {
			if entity.Type == "mention" {
				mentioned := pair.text[entity.Offset : entity.Offset+entity.Length]
				if strings.EqualFold(mentioned, "@"+botUsername) {
					return true
				}
			}
			if entity.Type == "bot_command" {
				cmdText := pair.text[entity.Offset : entity.Offset+entity.Length]
				if strings.Contains(strings.ToLower(cmdText), "@"+lowerBot) {
					return true
				}
			}
		}
	}

	// Fallback: substring check in both text and caption.
	if msg.Text != "" && strings.Contains(strings.ToLower(msg.Text), "@"+lowerBot) {
		return true
	}
	if msg.Caption != "" && strings.Contains(strings.ToLower(msg.Caption), "@"+lowerBot) {
		return true
	}

	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		if msg.ReplyToMessage.From.Username == botUsername {
			return true
		}
	}

	return false
}

// isServiceMessage returns true for service/system messages (member
// added/removed, title changed, pinned, etc.) that carry no user content.
func isServiceMessage(msg *telego.Message) bool {
	if msg.Text != "" || msg.Caption != "" {
		return false
	}
	if msg.Photo != nil || msg.Audio != nil || msg.Video != nil ||
		msg.Document != nil || msg.Voice != nil || msg.VideoNote != nil ||
		msg.Sticker != nil || msg.Animation != nil || msg.Contact != nil ||
		msg.Location != nil || msg.Venue != nil || msg.Poll != nil {
		return false
	}
	return true
}
