package router

import (
	"context"

	"github.com/nextlevelbuilder/gateclaw/internal/config"
	"github.com/nextlevelbuilder/gateclaw/internal/providers"
	"github.com/nextlevelbuilder/gateclaw/internal/sessions"
)

// Agent produces the reply for one admitted conversation turn. It streams
// fragments through onFragment as they are generated and returns the
// complete reply text at the end. The router depends only on this
// interface; the default implementation wraps a providers.Provider.
type Agent interface {
	StreamReply(ctx context.Context, history []sessions.HistoryEntry, turn string, onFragment func(string)) (string, error)
}

// ProviderAgent dispatches turns to an OpenAI-compatible chat endpoint.
type ProviderAgent struct {
	provider providers.Provider
	cfg      config.AgentConfig
}

// NewProviderAgent wraps provider with the configured model parameters.
func NewProviderAgent(provider providers.Provider, cfg config.AgentConfig) *ProviderAgent {
	return &ProviderAgent{provider: provider, cfg: cfg}
}

func (a *ProviderAgent) StreamReply(ctx context.Context, history []sessions.HistoryEntry, turn string, onFragment func(string)) (string, error) {
	msgs := make([]providers.Message, 0, len(history)+2)
	if a.cfg.SystemPrompt != "" {
		msgs = append(msgs, providers.Message{Role: "system", Content: a.cfg.SystemPrompt})
	}
	for _, e := range history {
		role := "user"
		content := e.Text
		if e.Role == "assistant" {
			role = "assistant"
		} else if e.Sender != "" {
			// Group history is shared across participants; prefix the
			// sender so the agent can tell voices apart.
			content = e.Sender + ": " + e.Text
		}
		msgs = append(msgs, providers.Message{Role: role, Content: content})
	}
	msgs = append(msgs, providers.Message{Role: "user", Content: turn})

	resp, err := a.provider.ChatStream(ctx, providers.ChatRequest{
		Messages:    msgs,
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
	}, func(c providers.StreamChunk) {
		if c.Content != "" && onFragment != nil {
			onFragment(c.Content)
		}
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
