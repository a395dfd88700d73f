package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fotoskupka/estimabot/internal/agent"
	"github.com/fotoskupka/estimabot/internal/bus"
	"github.com/fotoskupka/estimabot/internal/channels"
	"github.com/fotoskupka/estimabot/internal/channels/vk"
	"github.com/fotoskupka/estimabot/internal/config"
	"github.com/fotoskupka/estimabot/internal/dispatch"
	"github.com/fotoskupka/estimabot/internal/gate"
	"github.com/fotoskupka/estimabot/internal/gateway"
	"github.com/fotoskupka/estimabot/internal/intent"
	"github.com/fotoskupka/estimabot/internal/media"
	"github.com/fotoskupka/estimabot/internal/notify"
	"github.com/fotoskupka/estimabot/internal/providers"
	"github.com/fotoskupka/estimabot/internal/sessions"
)

func runServe() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Provider.APIKey == "" {
		slog.Error("no completion API key configured, set ESTIMABOT_OPENROUTER_API_KEY")
		os.Exit(1)
	}

	// Core pipeline
	msgBus := bus.New()

	g := gate.New(
		gate.NewDedupeCache(time.Duration(cfg.Gate.DedupeTTLMins)*time.Minute, cfg.Gate.DedupeMax),
		time.Duration(cfg.Gate.SpamWindowSecs)*time.Second,
		cfg.Gate.RateMax,
	)

	sess := sessions.NewManager(cfg.Messages.SystemPrompt, sessions.Limits{
		MaxHistory:  cfg.Sessions.MaxHistory,
		MaxSessions: cfg.Sessions.MaxSessions,
		IdleTTL:     time.Duration(cfg.Sessions.IdleTTLHours) * time.Hour,
	})

	provider := providers.NewOpenAIProvider(
		"openrouter",
		cfg.Provider.APIKey,
		cfg.Provider.APIBase,
		cfg.Provider.Model,
		time.Duration(cfg.Provider.TimeoutSecs)*time.Second,
	).WithHeaders(map[string]string{
		"HTTP-Referer": cfg.Provider.Referer,
		"X-Title":      cfg.Provider.Title,
	})

	fetcher := media.NewFetcher(
		time.Duration(cfg.Media.FetchTimeoutSecs)*time.Second,
		int64(cfg.Media.MaxBytes),
	)

	engine := agent.NewEngine(
		g,
		intent.NewClassifier(cfg.Intent.SellKeywords),
		sess,
		provider,
		fetcher,
		cfg.Provider.Model,
		cfg.Provider.MaxTokens,
		cfg.Messages,
	)

	// Delivery side
	var notifier dispatch.Notifier
	if cfg.Notify.Token != "" && cfg.Notify.ChatID != 0 {
		tn, nErr := notify.NewTelegramNotifier(cfg.Notify.Token, cfg.Notify.ChatID)
		if nErr != nil {
			slog.Warn("telegram notifier disabled", "error", nErr)
		} else {
			notifier = tn
			slog.Info("telegram staff notifications enabled", "channels", cfg.Notify.Channels)
		}
	}

	dispatcher := dispatch.NewDispatcher(
		dispatch.NewReplyDedup(time.Duration(cfg.Gate.DedupeTTLMins)*time.Minute, cfg.Gate.DedupeMax),
		notifier,
		cfg.NotifyEnabled,
	)
	dispatcher.Register(gateway.Sender{})

	var ingress []channels.Channel
	if cfg.VK.Token != "" && cfg.VK.GroupID != 0 {
		vkChannel := vk.New(cfg.VK, msgBus)
		dispatcher.Register(vkChannel)
		ingress = append(ingress, vkChannel)
	} else {
		slog.Warn("vk channel disabled, set ESTIMABOT_VK_TOKEN and ESTIMABOT_VK_GROUP_ID to enable")
	}

	server := gateway.NewServer(cfg.Gateway, cfg.Messages, engine, dispatcher)

	// Graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		engine.Consume(grpCtx, msgBus)
		return nil
	})
	grp.Go(func() error {
		dispatcher.Run(grpCtx, msgBus)
		return nil
	})

	for _, ch := range ingress {
		if err := ch.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", ch.Name(), "error", err)
			os.Exit(1)
		}
	}

	if err := server.Start(ctx); err != nil {
		slog.Error("failed to start web gateway", "error", err)
		os.Exit(1)
	}

	slog.Info("estimabot gateway started",
		"version", Version,
		"model", cfg.Provider.Model,
		"channels", len(ingress)+1, // plus the web ingress
		"notify", notifier != nil,
	)

	sig := <-sigCh
	slog.Info("graceful shutdown initiated", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	for _, ch := range ingress {
		if err := ch.Stop(shutdownCtx); err != nil {
			slog.Warn("channel stop failed", "channel", ch.Name(), "error", err)
		}
	}
	if err := server.Stop(shutdownCtx); err != nil {
		slog.Warn("web gateway shutdown failed", "error", err)
	}

	msgBus.Close()
	cancel()
	grp.Wait()

	slog.Info("estimabot gateway stopped")
}
