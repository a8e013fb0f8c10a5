// Package discord binds the Discord gateway to the message bus. Like the
// telegram binding it is a pure adapter: events become bus.InboundMessage
// values and outbound chunks are delivered to the channel; admission and
// gating decisions live in the routing core.
package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/gateclaw/internal/bus"
	"github.com/nextlevelbuilder/gateclaw/internal/channels"
	"github.com/nextlevelbuilder/gateclaw/internal/config"
	"github.com/nextlevelbuilder/gateclaw/internal/sessions"
)

// discordHardLimit is the platform ceiling for one message.
const discordHardLimit = 2000

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	config    config.DiscordConfig
	throttle  *channels.SendThrottle
	botUserID string // populated on start
}

// New creates a new Discord channel from config.
func New(cfg config.DiscordConfig, msgBus *bus.MessageBus) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", msgBus),
		session:     session,
		config:      cfg,
		throttle:    channels.NewSendThrottle(),
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)

	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers one outbound chunk, splitting defensively when it exceeds
// the platform limit.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}

	for _, part := range splitForSend(msg.Content, discordHardLimit) {
		if err := c.throttle.Wait(ctx, msg.ChatID); err != nil {
			return err
		}
		if _, err := c.session.ChannelMessageSend(msg.ChatID, part); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// SendTyping shows the typing indicator. Discord has no sub-threads in
// the forum-topic sense, so the thread id is ignored.
func (c *Channel) SendTyping(_ context.Context, chatID string, _ int) {
	if err := c.session.ChannelTyping(chatID); err != nil {
		slog.Debug("discord typing indicator failed", "channel_id", chatID, "error", err)
	}
}

// handleMessage adapts one gateway message event into a bus message.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore our own messages and other bots.
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	isDM := m.GuildID == ""

	content := m.Content
	for _, att := range m.Attachments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[attachment: %s]", att.URL)
	}
	if content == "" {
		content = "[empty message]"
	}

	mentioned := false
	if !isDM {
		for _, u := range m.Mentions {
			if u.ID == c.botUserID {
				mentioned = true
				break
			}
		}
		// Replying to one of the bot's messages counts as an implicit mention.
		if !mentioned && m.ReferencedMessage != nil &&
			m.ReferencedMessage.Author != nil &&
			m.ReferencedMessage.Author.ID == c.botUserID {
			mentioned = true
		}
	}

	senderName := resolveDisplayName(m)

	slog.Debug("discord message received",
		"sender_id", m.Author.ID,
		"channel_id", m.ChannelID,
		"is_dm", isDM,
		"mentions_bot", mentioned,
		"preview", channels.Truncate(content, 50),
	)

	metadata := map[string]string{
		"message_id":   m.ID,
		"username":     m.Author.Username,
		"display_name": senderName,
	}
	if m.GuildID != "" {
		metadata["guild_id"] = m.GuildID
	}

	c.Bus().PublishInbound(bus.InboundMessage{
		Channel:      c.Name(),
		SenderID:     m.Author.ID,
		ChatID:       m.ChannelID,
		Content:      content,
		Fingerprint:  "discord:" + m.ID,
		PeerKind:     string(sessions.PeerKindFromGroup(!isDM)),
		SenderHandle: m.Author.Username,
		MentionsBot:  mentioned,
		HistoryLimit: c.config.HistoryLimit,
		Metadata:     metadata,
	})
}

// resolveDisplayName returns the best available display name for a
// message author: server nickname, then global display name, then
// username.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// splitForSend splits content into rune-safe pieces of at most limit
// runes, preferring a newline break in the back half of each piece.
func splitForSend(content string, limit int) []string {
	runes := []rune(content)
	if len(runes) <= limit {
		return []string{content}
	}

	var parts []string
	for len(runes) > 0 {
		cut := limit
		if cut > len(runes) {
			cut = len(runes)
		} else {
			for i := cut - 1; i > cut/2; i-- {
				if runes[i] == '\n' {
					cut = i + 1
					break
				}
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	return parts
}
