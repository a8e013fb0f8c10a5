package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the write bursts editors produce on save.
const watchDebounce = 500 * time.Millisecond

// Watch reloads cfg in place whenever the file at path changes and then
// calls onReload. The parent directory is watched, not the file itself, so
// atomic rename-over-save (vim, temp+rename) keeps working. Setup errors
// are returned synchronously; the watch loop runs on its own goroutine
// until ctx is done.
func Watch(ctx context.Context, path string, cfg *Config, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return err
	}
	go watchLoop(ctx, watcher, path, cfg, onReload)
	return nil
}

func watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, cfg *Config, onReload func(*Config)) {
	defer watcher.Close()

	base := filepath.Base(path)
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		case <-reload:
			fresh, err := Load(path)
			if err != nil {
				slog.Error("config reload failed, keeping previous config", "path", path, "error", err)
				continue
			}
			if err := fresh.Validate(); err != nil {
				slog.Error("config reload rejected", "path", path, "error", err)
				continue
			}
			cfg.ReplaceFrom(fresh)
			slog.Info("config reloaded", "path", path)
			if onReload != nil {
				onReload(cfg)
			}
		}
	}
}
