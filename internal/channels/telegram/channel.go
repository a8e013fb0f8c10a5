// Package telegram binds the Telegram Bot API to the message bus. The
// binding adapts updates into bus.InboundMessage values and delivers
// outbound chunks; admission, pairing and mention gating happen in the
// routing core.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/gateclaw/internal/bus"
	"github.com/nextlevelbuilder/gateclaw/internal/channels"
	"github.com/nextlevelbuilder/gateclaw/internal/config"
	"github.com/nextlevelbuilder/gateclaw/internal/sessions"
)

// telegramHardLimit is the Bot API ceiling for one message. The router
// chunks replies below the configured limit already; this is the last
// line of defence for oversized single chunks.
const telegramHardLimit = 4096

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	*channels.BaseChannel
	bot        *telego.Bot
	config     config.TelegramConfig
	throttle   *channels.SendThrottle
	pollCancel context.CancelFunc // cancels the long polling context
	pollDone   chan struct{}      // closed when polling goroutine exits
}

// New creates a new Telegram channel from config.
func New(cfg config.TelegramConfig, msgBus *bus.MessageBus) (*Channel, error) {
	var opts []telego.BotOption

	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", msgBus),
		bot:         bot,
		config:      cfg,
		throttle:    channels.NewSendThrottle(),
	}, nil
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	// Stop() cancels this context to cleanly shut down long polling.
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout: 30,
		AllowedUpdates: []string{
			"message",
			"my_chat_member",
		},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	// Register the bot menu with retry.
	go func() {
		commands := DefaultMenuCommands()
		for attempt := 1; attempt <= 3; attempt++ {
			if err := c.SyncMenuCommands(pollCtx, commands); err != nil {
				slog.Warn("failed to sync telegram menu commands", "error", err, "attempt", attempt)
				if attempt < 3 {
					select {
					case <-pollCtx.Done():
						return
					case <-time.After(time.Duration(attempt*5) * time.Second):
					}
				}
			} else {
				slog.Info("telegram menu commands synced")
				return
			}
		}
	}()

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(pollCtx, update)
				} else {
					slog.Debug("telegram update skipped (no message)",
						"update_id", update.UpdateID)
				}
			}
		}
	}()

	return nil
}

// Stop shuts down the Telegram bot by cancelling the long polling context
// and waiting for the polling goroutine to exit.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}

	// Wait for the polling goroutine to fully exit so that Telegram
	// releases the getUpdates lock before a new instance starts.
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
			slog.Info("telegram bot stopped")
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}

	return nil
}

// Send delivers one outbound chunk, splitting defensively if it exceeds
// the Bot API hard limit. The General topic id is never forwarded:
// Telegram rejects it with "thread not found".
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}

	chatID, err := parseChatID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("parse telegram chat id %q: %w", msg.ChatID, err)
	}

	threadID := resolveThreadIDForSend(msg.ThreadID)

	for _, part := range splitForSend(msg.Content, telegramHardLimit) {
		if err := c.throttle.Wait(ctx, msg.ChatID); err != nil {
			return err
		}
		params := tu.Message(tu.ID(chatID), part)
		if threadID > 0 {
			params.MessageThreadID = threadID
		}
		if _, err := c.bot.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// SendTyping shows the typing indicator. Unlike sends, the General topic
// id is accepted by the typing endpoint, so the raw thread id is used.
func (c *Channel) SendTyping(ctx context.Context, chatIDStr string, threadID int) {
	chatID, err := parseChatID(chatIDStr)
	if err != nil {
		return
	}
	action := tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)
	if threadID > 0 {
		action.MessageThreadID = threadID
	}
	if err := c.bot.SendChatAction(ctx, action); err != nil {
		slog.Debug("telegram typing indicator failed", "chat_id", chatIDStr, "error", err)
	}
}

// parseChatID converts a string chat ID to int64.
func parseChatID(chatIDStr string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(chatIDStr, "%d", &id)
	return id, err
}

// resolveThreadIDForSend returns the thread ID for Telegram send API
// calls. The General topic must be omitted.
func resolveThreadIDForSend(threadID int) int {
	if threadID == sessions.GeneralTopicID {
		return 0
	}
	return threadID
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
