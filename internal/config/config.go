// Package config holds the gateway configuration: channel policies, agent
// provider settings, storage mode, and telemetry. Config is read from a
// JSON5 file with env-var overlay; secrets come from env only.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON. Chat platforms
// use numeric sender ids and operators paste them unquoted.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, strconv.FormatFloat(val, 'f', -1, 64))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the GateClaw gateway.
type Config struct {
	Channels  ChannelsConfig  `json:"channels"`
	Agent     AgentConfig     `json:"agent"`
	Gateway   GatewayConfig   `json:"gateway"`
	Sessions  SessionsConfig  `json:"sessions"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// ChannelsConfig contains per-channel configuration.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

// TelegramConfig configures the Telegram transport and its access policy.
type TelegramConfig struct {
	Enabled        bool                    `json:"enabled"`
	Token          string                  `json:"token"`
	Proxy          string                  `json:"proxy,omitempty"` // HTTP proxy URL for Bot API calls
	AllowFrom      FlexibleStringSlice     `json:"allow_from"`
	DMPolicy       string                  `json:"dm_policy,omitempty"`        // "pairing" (default), "allowlist", "open", "disabled"
	GroupPolicy    string                  `json:"group_policy,omitempty"`     // "open" (default), "allowlist", "disabled"
	GroupAllowFrom FlexibleStringSlice     `json:"group_allow_from,omitempty"` // group allowlist; empty falls back to allow_from
	RequireMention *bool                   `json:"require_mention,omitempty"`  // require @bot mention in groups (default true)
	HistoryLimit   int                     `json:"history_limit,omitempty"`    // max buffered group messages for context (default 50, 0=disabled)
	StreamMode     string                  `json:"stream_mode,omitempty"`      // "off" (default), "partial", "block"
	TextChunkLimit int                     `json:"text_chunk_limit,omitempty"` // default 4000
	Groups         map[string]*GroupConfig `json:"groups,omitempty"`           // per-group overrides, "*" = all groups
}

// DiscordConfig configures the Discord transport and its access policy.
type DiscordConfig struct {
	Enabled        bool                    `json:"enabled"`
	Token          string                  `json:"token"`
	AllowFrom      FlexibleStringSlice     `json:"allow_from"`
	DMPolicy       string                  `json:"dm_policy,omitempty"`
	GroupPolicy    string                  `json:"group_policy,omitempty"`
	GroupAllowFrom FlexibleStringSlice     `json:"group_allow_from,omitempty"`
	RequireMention *bool                   `json:"require_mention,omitempty"`
	HistoryLimit   int                     `json:"history_limit,omitempty"`
	TextChunkLimit int                     `json:"text_chunk_limit,omitempty"` // default 2000 (platform hard cap)
	Groups         map[string]*GroupConfig `json:"groups,omitempty"`
}

// GroupConfig overrides channel-level settings for one group chat.
type GroupConfig struct {
	Enabled        *bool                   `json:"enabled,omitempty"`
	RequireMention *bool                   `json:"require_mention,omitempty"`
	AllowFrom      FlexibleStringSlice     `json:"allow_from,omitempty"`
	Topics         map[string]*TopicConfig `json:"topics,omitempty"` // forum topic id -> overrides
}

// TopicConfig overrides group-level settings for one forum topic.
type TopicConfig struct {
	RequireMention *bool `json:"require_mention,omitempty"`
}

// GroupFor resolves the per-group override for chatID, falling back to the
// "*" wildcard entry. Returns nil when neither is configured.
func groupFor(groups map[string]*GroupConfig, chatID string) *GroupConfig {
	if g, ok := groups[chatID]; ok {
		return g
	}
	return groups["*"]
}

// GroupFor returns the override entry for chatID (exact match, then "*").
func (c *TelegramConfig) GroupFor(chatID string) *GroupConfig {
	return groupFor(c.Groups, chatID)
}

// GroupFor returns the override entry for chatID (exact match, then "*").
func (c *DiscordConfig) GroupFor(chatID string) *GroupConfig {
	return groupFor(c.Groups, chatID)
}

// TopicFor returns the override entry for a forum topic, nil when absent.
func (g *GroupConfig) TopicFor(threadID int) *TopicConfig {
	if g == nil || g.Topics == nil {
		return nil
	}
	return g.Topics[strconv.Itoa(threadID)]
}

// AgentConfig configures the downstream agent the gateway dispatches to.
type AgentConfig struct {
	Provider    string  `json:"provider,omitempty"` // "openai" (default; any OpenAI-compatible endpoint)
	APIKey      string  `json:"api_key,omitempty"`
	APIBase     string  `json:"api_base,omitempty"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// GatewayConfig controls the routing core.
type GatewayConfig struct {
	MaxConcurrent   int `json:"max_concurrent,omitempty"`    // parallel conversation turns (default 4)
	MaxMessageChars int `json:"max_message_chars,omitempty"` // inbound truncation limit (default 32000)
	DedupeTTLSec    int `json:"dedupe_ttl_sec,omitempty"`    // duplicate window in seconds (default 300)
	DedupeCapacity  int `json:"dedupe_capacity,omitempty"`   // max tracked fingerprints (default 4096)
}

// SessionsConfig controls session storage.
type SessionsConfig struct {
	Storage string `json:"storage"` // directory for session files (standalone mode)
}

// DatabaseConfig configures Postgres for managed mode.
// PostgresDSN is never read from config.json; env GATECLAW_POSTGRES_DSN only.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
	Mode        string `json:"mode,omitempty"`    // "standalone" (default) or "managed"
	Path        string `json:"path,omitempty"`    // sqlite file path (standalone)
}

// IsManagedMode reports whether the gateway runs against Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.PostgresDSN != ""
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"` // default "gateclaw-gateway"
	Headers     map[string]string `json:"headers,omitempty"`
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
// Used by the config watcher on reload.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Channels = src.Channels
	c.Agent = src.Agent
	c.Gateway = src.Gateway
	c.Sessions = src.Sessions
	c.Database = src.Database
	c.Telemetry = src.Telemetry
}

// Snapshot is a copied view of the reloadable data fields. Anything that
// reads config concurrently with the watcher must go through Snapshot
// rather than touching Config fields directly.
type Snapshot struct {
	Channels  ChannelsConfig
	Agent     AgentConfig
	Gateway   GatewayConfig
	Sessions  SessionsConfig
	Database  DatabaseConfig
	Telemetry TelemetryConfig
}

// Snapshot returns a point-in-time copy taken under the read lock. Nested
// slices and maps are shared with the live config; reload replaces them
// wholesale and never mutates them in place, so a snapshot stays internally
// consistent after ReplaceFrom runs.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Channels:  c.Channels,
		Agent:     c.Agent,
		Gateway:   c.Gateway,
		Sessions:  c.Sessions,
		Database:  c.Database,
		Telemetry: c.Telemetry,
	}
}
