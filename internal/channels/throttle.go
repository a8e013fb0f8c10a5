package channels

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

const (
	// Platform-wide ceiling for outbound API calls per second.
	globalSendRate  = 25
	globalSendBurst = 5

	// Per-chat ceiling: platforms throttle bursts into a single chat far
	// more aggressively than the global budget.
	chatSendRate  = 1
	chatSendBurst = 3

	// maxTrackedChats caps tracked per-chat limiters so churning chat ids
	// cannot exhaust memory.
	maxTrackedChats = 4096
)

// SendThrottle rate-limits outbound sends globally and per chat, the
// bounded-retry side of outbound delivery: a send waits for budget instead
// of hammering the platform API. Safe for concurrent use.
type SendThrottle struct {
	global *rate.Limiter

	mu    sync.Mutex
	chats map[string]*rate.Limiter
}

// NewSendThrottle creates a throttle with the default platform budgets.
func NewSendThrottle() *SendThrottle {
	return &SendThrottle{
		global: rate.NewLimiter(rate.Limit(globalSendRate), globalSendBurst),
		chats:  make(map[string]*rate.Limiter),
	}
}

// Wait blocks until both the global and the chat budget allow one send,
// or ctx is cancelled.
func (t *SendThrottle) Wait(ctx context.Context, chatID string) error {
	if err := t.global.Wait(ctx); err != nil {
		return err
	}
	return t.chatLimiter(chatID).Wait(ctx)
}

func (t *SendThrottle) chatLimiter(chatID string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if lim, ok := t.chats[chatID]; ok {
		return lim
	}
	// Hard eviction at the cap (map iteration order is as good as any for
	// a best-effort bound).
	for len(t.chats) >= maxTrackedChats {
		for k := range t.chats {
			delete(t.chats, k)
			break
		}
	}
	lim := rate.NewLimiter(rate.Limit(chatSendRate), chatSendBurst)
	t.chats[chatID] = lim
	return lim
}
