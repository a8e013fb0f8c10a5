package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Channels.Telegram.DMPolicy != "pairing" {
		t.Errorf("default dm_policy = %q, want pairing", cfg.Channels.Telegram.DMPolicy)
	}
	if cfg.Channels.Telegram.TextChunkLimit != 4000 {
		t.Errorf("default chunk limit = %d, want 4000", cfg.Channels.Telegram.TextChunkLimit)
	}
	if cfg.Gateway.MaxConcurrent != 4 {
		t.Errorf("default max_concurrent = %d, want 4", cfg.Gateway.MaxConcurrent)
	}
}

func TestLoad_JSON5CommentsAndNumericAllowFrom(t *testing.T) {
	path := writeConfig(t, `{
		// operator notes survive parsing
		channels: {
			telegram: {
				enabled: true,
				token: "123:abc",
				allow_from: [123456789, "alice"],
			},
		},
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := cfg.Channels.Telegram.AllowFrom
	if len(got) != 2 || got[0] != "123456789" || got[1] != "alice" {
		t.Errorf("allow_from = %v, want [123456789 alice]", got)
	}
}

func TestLoad_EnvOverlay(t *testing.T) {
	path := writeConfig(t, `{channels: {telegram: {token: "from-file"}}}`)
	t.Setenv("GATECLAW_TELEGRAM_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Channels.Telegram.Token != "from-env" {
		t.Errorf("token = %q, env must win over file", cfg.Channels.Telegram.Token)
	}
	if !cfg.Channels.Telegram.Enabled {
		t.Error("channel should auto-enable when token comes from env")
	}
}

func TestValidate_OpenDMRequiresWildcard(t *testing.T) {
	cfg := Default()
	cfg.Channels.Telegram.Enabled = true
	cfg.Channels.Telegram.Token = "123:abc"
	cfg.Channels.Telegram.DMPolicy = "open"

	if err := cfg.Validate(); err == nil {
		t.Fatal(`open dm_policy without "*" in allow_from must be rejected`)
	}

	cfg.Channels.Telegram.AllowFrom = FlexibleStringSlice{"*"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("open policy with wildcard should validate: %v", err)
	}
}

func TestValidate_UnknownPolicy(t *testing.T) {
	cfg := Default()
	cfg.Channels.Telegram.Enabled = true
	cfg.Channels.Telegram.Token = "123:abc"
	cfg.Channels.Telegram.DMPolicy = "anything-goes"

	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown dm_policy must be rejected")
	}
}

func TestValidate_EnabledChannelNeedsToken(t *testing.T) {
	cfg := Default()
	cfg.Channels.Discord.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled channel without token must be rejected")
	}
}

func TestSnapshotConsistentDuringReload(t *testing.T) {
	cfg := Default()
	cfg.Channels.Telegram.DMPolicy = "allowlist"

	alt := Default()
	alt.Channels.Telegram.DMPolicy = "open"
	alt.Channels.Telegram.AllowFrom = FlexibleStringSlice{"*"}

	orig := Default()
	orig.Channels.Telegram.DMPolicy = "allowlist"

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			cfg.ReplaceFrom(alt)
			cfg.ReplaceFrom(orig)
		}
	}()

	for i := 0; i < 500; i++ {
		snap := cfg.Snapshot()
		switch p := snap.Channels.Telegram.DMPolicy; p {
		case "allowlist", "open":
		default:
			t.Fatalf("torn snapshot: dm_policy %q", p)
		}
	}
	<-done
}

func TestGroupFor_WildcardFallback(t *testing.T) {
	yes := true
	cfg := TelegramConfig{
		Groups: map[string]*GroupConfig{
			"*":    {RequireMention: &yes},
			"-100": {Topics: map[string]*TopicConfig{"42": {RequireMention: &yes}}},
		},
	}

	if g := cfg.GroupFor("-100"); g == nil || g.Topics == nil {
		t.Fatal("exact group entry should win over wildcard")
	}
	if g := cfg.GroupFor("-999"); g == nil || g.RequireMention == nil || !*g.RequireMention {
		t.Fatal("unknown group should fall back to the wildcard entry")
	}
	if cfg.GroupFor("-100").TopicFor(42) == nil {
		t.Error("configured topic override not found")
	}
	if cfg.GroupFor("-100").TopicFor(7) != nil {
		t.Error("unconfigured topic should return nil")
	}
}
