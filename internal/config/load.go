package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				DMPolicy:       "pairing",
				GroupPolicy:    "open",
				HistoryLimit:   50,
				StreamMode:     "off",
				TextChunkLimit: 4000,
			},
			Discord: DiscordConfig{
				DMPolicy:       "pairing",
				GroupPolicy:    "open",
				HistoryLimit:   50,
				TextChunkLimit: 2000,
			},
		},
		Agent: AgentConfig{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 4096,
		},
		Gateway: GatewayConfig{
			MaxConcurrent:   4,
			MaxMessageChars: 32000,
			DedupeTTLSec:    300,
			DedupeCapacity:  4096,
		},
		Sessions: SessionsConfig{
			Storage: "~/.gateclaw/sessions",
		},
		Database: DatabaseConfig{
			Path: "~/.gateclaw/gateclaw.db",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("GATECLAW_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("GATECLAW_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("GATECLAW_AGENT_API_KEY", &c.Agent.APIKey)
	envStr("GATECLAW_AGENT_API_BASE", &c.Agent.APIBase)
	envStr("GATECLAW_AGENT_MODEL", &c.Agent.Model)
	envStr("GATECLAW_SESSIONS_STORAGE", &c.Sessions.Storage)
	envStr("GATECLAW_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("GATECLAW_MODE", &c.Database.Mode)
	envStr("GATECLAW_DB_PATH", &c.Database.Path)

	// Auto-enable channels if credentials are provided via env.
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}

	if v := os.Getenv("GATECLAW_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Gateway.MaxConcurrent = n
		}
	}

	// Telemetry. An endpoint provided via env enables export, same as
	// channel tokens; GATECLAW_TELEMETRY_ENABLED=false still wins.
	if v := os.Getenv("GATECLAW_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
	envStr("GATECLAW_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("GATECLAW_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("GATECLAW_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("GATECLAW_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

var dmPolicies = map[string]bool{"": true, "pairing": true, "allowlist": true, "open": true, "disabled": true}
var groupPolicies = map[string]bool{"": true, "open": true, "allowlist": true, "disabled": true}
var streamModes = map[string]bool{"": true, "off": true, "partial": true, "block": true}

// Validate checks policy values on enabled channels. An "open" DM policy is
// refused unless allow_from contains the "*" wildcard: an unrestricted bot
// must be an explicit operator decision, not a typo.
func (c *Config) Validate() error {
	check := func(name, dmPolicy, groupPolicy, streamMode string, allowFrom []string) error {
		if !dmPolicies[dmPolicy] {
			return fmt.Errorf("channels.%s: unknown dm_policy %q", name, dmPolicy)
		}
		if !groupPolicies[groupPolicy] {
			return fmt.Errorf("channels.%s: unknown group_policy %q", name, groupPolicy)
		}
		if !streamModes[streamMode] {
			return fmt.Errorf("channels.%s: unknown stream_mode %q", name, streamMode)
		}
		if dmPolicy == "open" && !containsWildcard(allowFrom) {
			return fmt.Errorf(`channels.%s: dm_policy "open" requires allow_from to include "*"`, name)
		}
		return nil
	}

	if c.Channels.Telegram.Enabled {
		tg := &c.Channels.Telegram
		if tg.Token == "" {
			return fmt.Errorf("channels.telegram: enabled but no token")
		}
		if err := check("telegram", tg.DMPolicy, tg.GroupPolicy, tg.StreamMode, tg.AllowFrom); err != nil {
			return err
		}
	}
	if c.Channels.Discord.Enabled {
		dc := &c.Channels.Discord
		if dc.Token == "" {
			return fmt.Errorf("channels.discord: enabled but no token")
		}
		if err := check("discord", dc.DMPolicy, dc.GroupPolicy, "", dc.AllowFrom); err != nil {
			return err
		}
	}
	return nil
}

func containsWildcard(allowFrom []string) bool {
	for _, entry := range allowFrom {
		if strings.TrimSpace(entry) == "*" {
			return true
		}
	}
	return false
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
