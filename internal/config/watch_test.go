package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWatch_ReturnsAfterSetup(t *testing.T) {
	path := writeConfig(t, `{gateway: {max_concurrent: 2}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	returned := make(chan error, 1)
	go func() { returned <- Watch(ctx, path, cfg, nil) }()

	select {
	case err := <-returned:
		if err != nil {
			t.Fatalf("watch setup: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after setup; callers would never reach their serve loop")
	}
}

func TestWatch_AppliesFileChanges(t *testing.T) {
	path := writeConfig(t, `{gateway: {max_concurrent: 2}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reloaded := make(chan struct{}, 1)
	if err := Watch(ctx, path, cfg, func(*Config) {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("watch setup: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{gateway: {max_concurrent: 9}}`), 0600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("reload callback never fired")
	}
	if got := cfg.Snapshot().Gateway.MaxConcurrent; got != 9 {
		t.Errorf("max_concurrent after reload = %d, want 9", got)
	}
}

func TestWatch_RejectedReloadKeepsPrevious(t *testing.T) {
	t.Setenv("GATECLAW_TELEGRAM_TOKEN", "")
	path := writeConfig(t, `{gateway: {max_concurrent: 2}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := Watch(ctx, path, cfg, nil); err != nil {
		t.Fatalf("watch setup: %v", err)
	}

	// Enabled channel without a token fails validation; the running config
	// must stay on its last good state.
	if err := os.WriteFile(path, []byte(`{channels: {telegram: {enabled: true}}}`), 0600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(watchDebounce + 700*time.Millisecond)

	snap := cfg.Snapshot()
	if snap.Channels.Telegram.Enabled {
		t.Error("invalid reload was applied")
	}
	if snap.Gateway.MaxConcurrent != 2 {
		t.Errorf("max_concurrent = %d, want previous value 2", snap.Gateway.MaxConcurrent)
	}
}
