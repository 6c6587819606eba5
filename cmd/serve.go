package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/herald/internal/approval"
	"github.com/nextlevelbuilder/herald/internal/bus"
	"github.com/nextlevelbuilder/herald/internal/channels"
	"github.com/nextlevelbuilder/herald/internal/channels/discord"
	"github.com/nextlevelbuilder/herald/internal/channels/telegram"
	"github.com/nextlevelbuilder/herald/internal/classifier"
	"github.com/nextlevelbuilder/herald/internal/config"
	"github.com/nextlevelbuilder/herald/internal/dedup"
	"github.com/nextlevelbuilder/herald/internal/delivery"
	"github.com/nextlevelbuilder/herald/internal/engine"
	"github.com/nextlevelbuilder/herald/internal/generator"
	"github.com/nextlevelbuilder/herald/internal/pending"
	"github.com/nextlevelbuilder/herald/internal/providers"
	"github.com/nextlevelbuilder/herald/internal/store"
	"github.com/nextlevelbuilder/herald/internal/store/pg"
	"github.com/nextlevelbuilder/herald/internal/store/sqlite"
	"github.com/nextlevelbuilder/herald/internal/sweeper"
	"github.com/nextlevelbuilder/herald/internal/tracker"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Herald service",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
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
	if cfg.Provider.APIKey == "" {
		slog.Error("no provider API key found, set HERALD_API_KEY")
		os.Exit(1)
	}

	stores, err := openStores(cfg)
	if err != nil {
		slog.Error("failed to open durable store", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	provider := buildProvider(cfg)
	draftModel := cfg.Provider.Model
	if draftModel == "" {
		draftModel = provider.DefaultModel()
	}
	classifierModel := cfg.Provider.ClassifierModel
	if classifierModel == "" {
		classifierModel = draftModel
	}

	msgBus := bus.NewMessageBus()
	pendingStore := pending.NewStore(stores.Pending)
	trk := tracker.New()
	dd := dedup.New()
	cl := classifier.New(provider, classifierModel)
	gen := generator.New(provider, draftModel)

	senders := buildSenders(cfg, msgBus)
	approvalHandler := approval.NewHandler(pendingStore, senders, stores.Audit, stores.Mentions, gen, msgBus)

	eng := engine.New(engineConfig(cfg), msgBus, trk, cl, dd, pendingStore, gen, approvalHandler, stores.Audit, stores.Topics)

	channelMgr := channels.NewManager(msgBus)
	registerChannels(channelMgr, cfg, msgBus)

	swp := sweeper.New(cfg.Sweeper.Schedule, pendingStore, dd, trk, stores.Mentions)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := channelMgr.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
	}

	// Config hot reload. Channel and store changes need a restart; log
	// so the operator knows a write was picked up.
	go func() {
		if err := config.Watch(ctx, cfgPath, func(updated *config.Config) {
			slog.Info("config reloaded", "path", cfgPath,
				"event_category", updated.Engine.EventCategory,
				"targets", len(updated.Engine.Targets))
		}); err != nil {
			slog.Warn("config watcher unavailable", "error", err)
		}
	}()

	slog.Info("herald starting",
		"version", Version,
		"provider", provider.Name(),
		"model", draftModel,
		"classifier_model", classifierModel,
		"store", storeKind(cfg),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })
	g.Go(func() error { return swp.Run(ctx) })

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("service error", "error", err)
	}

	slog.Info("graceful shutdown initiated")
	if err := channelMgr.StopAll(context.Background()); err != nil {
		slog.Warn("channel shutdown error", "error", err)
	}
}

func openStores(cfg *config.Config) (*store.Stores, error) {
	if cfg.IsPostgres() {
		return pg.NewStores(cfg.Database.PostgresDSN)
	}
	path := cfg.Database.SQLitePath
	if path == "" {
		path = "herald.db"
	}
	return sqlite.NewStores(path)
}

func storeKind(cfg *config.Config) string {
	if cfg.IsPostgres() {
		return "postgres"
	}
	return "sqlite"
}

func buildProvider(cfg *config.Config) providers.Provider {
	switch cfg.Provider.Name {
	case "openai":
		var opts []providers.OpenAIOption
		if cfg.Provider.Model != "" {
			opts = append(opts, providers.WithOpenAIModel(cfg.Provider.Model))
		}
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, providers.WithOpenAIBaseURL(cfg.Provider.BaseURL))
		}
		return providers.NewOpenAIProvider(cfg.Provider.APIKey, opts...)
	default:
		var opts []providers.AnthropicOption
		if cfg.Provider.Model != "" {
			opts = append(opts, providers.WithAnthropicModel(cfg.Provider.Model))
		}
		if cfg.Provider.BaseURL != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(cfg.Provider.BaseURL))
		}
		return providers.NewAnthropicProvider(cfg.Provider.APIKey, opts...)
	}
}

func buildSenders(cfg *config.Config, msgBus *bus.MessageBus) *delivery.Registry {
	senders := delivery.NewRegistry()

	if cfg.Delivery.Email.Host != "" {
		senders.Register(pending.ChannelEmailList, delivery.NewEmailSender(cfg.Delivery.Email))
		slog.Info("email delivery enabled", "host", cfg.Delivery.Email.Host, "list", cfg.Delivery.Email.ListAddr)
	}
	if cfg.Delivery.Board.URL != "" {
		senders.Register(pending.ChannelCommunityBoard, delivery.NewBoardPoster(cfg.Delivery.Board))
		slog.Info("board delivery enabled", "url", cfg.Delivery.Board.URL)
	}
	senders.Register(pending.ChannelDirectMessage,
		delivery.NewChatSender(msgBus, cfg.Delivery.DirectMessage.Surface, cfg.Delivery.DirectMessage.ChannelID))

	return senders
}

func engineConfig(cfg *config.Config) engine.Config {
	ec := engine.Config{EventCategory: pending.EventCategory(cfg.Engine.EventCategory)}
	for _, t := range cfg.Engine.Targets {
		ec.Targets = append(ec.Targets, engine.Target{
			Channel: pending.Channel(t.Channel),
			Timing:  pending.Timing(t.Timing),
		})
	}
	return ec
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
