package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nextlevelbuilder/gateclaw/internal/bus"
	"github.com/nextlevelbuilder/gateclaw/internal/channels"
	"github.com/nextlevelbuilder/gateclaw/internal/channels/discord"
	"github.com/nextlevelbuilder/gateclaw/internal/channels/telegram"
	"github.com/nextlevelbuilder/gateclaw/internal/config"
	"github.com/nextlevelbuilder/gateclaw/internal/providers"
	"github.com/nextlevelbuilder/gateclaw/internal/router"
	"github.com/nextlevelbuilder/gateclaw/internal/scheduler"
	"github.com/nextlevelbuilder/gateclaw/internal/sessions"
	"github.com/nextlevelbuilder/gateclaw/internal/store"
	"github.com/nextlevelbuilder/gateclaw/internal/store/pg"
	"github.com/nextlevelbuilder/gateclaw/internal/store/sqlite"
	"github.com/nextlevelbuilder/gateclaw/internal/telemetry"
)

func runGateway() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing (off unless configured).
	tel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without tracing", "error", err)
	}
	if tel != nil {
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := tel.Shutdown(shutdownCtx); err != nil {
				slog.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	// Durable state: Postgres in managed mode, sqlite otherwise.
	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	msgBus := bus.NewMessageBus()
	dedupe := bus.NewDedupeCache(
		time.Duration(cfg.Gateway.DedupeTTLSec)*time.Second,
		cfg.Gateway.DedupeCapacity,
	)

	sched := scheduler.New(int64(cfg.Gateway.MaxConcurrent))
	sched.Start(ctx)
	defer sched.Stop()

	sessMgr := sessions.NewManager(config.ExpandHome(cfg.Sessions.Storage))

	// Per-channel history limits travel with each inbound event; the buffer
	// itself holds no cap of its own.
	history := sessions.NewHistoryBuffer()

	offset := router.NewUpdateOffset(stores.Offsets)
	for _, name := range enabledChannels(cfg) {
		if err := offset.Load(name); err != nil {
			slog.Error("failed to load update offset", "channel", name, "error", err)
			os.Exit(1)
		}
		slog.Info("update offset loaded", "channel", name, "offset", offset.Last(name))
	}

	agent := router.NewProviderAgent(
		providers.NewOpenAIProvider(cfg.Agent.Provider, cfg.Agent.APIKey, cfg.Agent.APIBase, cfg.Agent.Model),
		cfg.Agent,
	)

	channelMgr := channels.NewManager(msgBus)
	registerChannels(channelMgr, cfg, msgBus)

	deps := router.Deps{
		Bus:       msgBus,
		Dedupe:    dedupe,
		Scheduler: sched,
		History:   history,
		Sessions:  sessMgr,
		Pairing:   stores.Pairing,
		Offset:    offset,
		Agent:     agent,
		Typing: func(channel, chatID string, threadID int) {
			if ch, ok := channelMgr.Get(channel); ok {
				ch.SendTyping(ctx, chatID, threadID)
			}
		},
	}
	if tel != nil {
		deps.Tracer = tel.Tracer()
	}
	rt := router.New(cfg, deps)
	go rt.Run(ctx)

	if err := channelMgr.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
	}

	mode := "standalone"
	if cfg.IsManagedMode() {
		mode = "managed"
	}
	maxConcurrent := cfg.Gateway.MaxConcurrent
	channelNames := enabledChannels(cfg)

	// Hot reload: policy and limit changes apply without restart; token and
	// database changes still need one. The watch loop runs on its own
	// goroutine; only setup failures surface here. Direct cfg field reads
	// above happen before the watcher can touch the config.
	if err := config.Watch(ctx, cfgPath, cfg, func(_ *config.Config) {
		slog.Info("configuration reloaded", "path", cfgPath)
	}); err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	}

	slog.Info("gateclaw gateway started",
		"version", Version,
		"mode", mode,
		"channels", channelNames,
		"max_concurrent", maxConcurrent,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("graceful shutdown initiated", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := channelMgr.StopAll(shutdownCtx); err != nil {
		slog.Error("error stopping channels", "error", err)
	}
	cancel()
	if !sched.WaitIdle(10 * time.Second) {
		slog.Warn("in-flight turns did not finish within shutdown timeout")
	}
	slog.Info("gateclaw gateway stopped")
}

// openStores selects the storage backend from config.
func openStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.IsManagedMode() {
		slog.Info("using postgres stores (managed mode)")
		return pg.NewStores(cfg.Database.PostgresDSN)
	}
	path := config.ExpandHome(cfg.Database.Path)
	slog.Info("using sqlite stores", "path", path)
	return sqlite.NewStores(path)
}

func enabledChannels(cfg *config.Config) []string {
	var names []string
	if cfg.Channels.Telegram.Enabled {
		names = append(names, "telegram")
	}
	if cfg.Channels.Discord.Enabled {
		names = append(names, "discord")
	}
	return names
}

func registerChannels(mgr *channels.Manager, cfg *config.Config, msgBus *bus.MessageBus) {
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		tg, err := telegram.New(cfg.Channels.Telegram, msgBus)
		if err != nil {
			slog.Error("failed to initialize telegram channel", "error", err)
		} else {
			mgr.Register(tg)
			slog.Info("telegram channel enabled")
		}
	}

	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token != "" {
		dc, err := discord.New(cfg.Channels.Discord, msgBus)
		if err != nil {
			slog.Error("failed to initialize discord channel", "error", err)
		} else {
			mgr.Register(dc)
			slog.Info("discord channel enabled")
		}
	}
}
