package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	goredis "github.com/redis/go-redis/v9"

	"github.com/codejam/backend/internal/broker"
	"github.com/codejam/backend/internal/chat"
	"github.com/codejam/backend/internal/config"
	"github.com/codejam/backend/internal/database"
	"github.com/codejam/backend/internal/db"
	"github.com/codejam/backend/internal/logging"
	"github.com/codejam/backend/internal/router"
	sentryscrub "github.com/codejam/backend/internal/sentry"
)

func main() {
	// Initialize structured logging (reads LOGGING_LEVEL env var)
	logging.Initialize()

	// Load configuration
	cfg := config.Load()
	if cfg.BackendToken == "" {
		slog.Warn("BACKEND_TOKEN is not set; bot routes will reject every request")
	}

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:                   cfg.SentryDSN,
			Environment:           cfg.SentryEnvironment,
			SendDefaultPII:        false,
			BeforeSend:            sentryscrub.ScrubEvent,
			BeforeSendTransaction: sentryscrub.ScrubTransaction,
		})
		if err != nil {
			slog.Error("failed to initialize sentry", slog.Any("error", err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Initialize database
	sqlDB, dialect, err := database.New(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer sqlDB.Close()

	// Run migrations
	if err := database.RunMigrations(sqlDB, dialect); err != nil {
		slog.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := broker.NewRegistry(cfg.SubscriberQueueLimit)
	var publisherOpts []broker.PublisherOption
	if cfg.RedisURL != "" {
		opts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", slog.Any("error", err))
			os.Exit(1)
		}
		client := goredis.NewClient(opts)
		defer client.Close()

		relay := broker.NewRedisRelay(client, registry, cfg.RedisChannelPrefix)
		go relay.Run(ctx)
		publisherOpts = append(publisherOpts, broker.WithRelay(relay))
		slog.Info("relaying feeds through redis", slog.String("prefix", cfg.RedisChannelPrefix))
	}
	publisher := broker.NewPublisher(registry, publisherOpts...)

	var identities chat.Resolver = chat.StaticResolver{}
	if cfg.DiscordToken != "" {
		discord, err := chat.NewDiscordResolver(cfg.DiscordToken, cfg.DiscordGuildID)
		if err != nil {
			slog.Error("failed to create discord client", slog.Any("error", err))
			os.Exit(1)
		}
		identities = discord
	} else {
		slog.Warn("DISCORD_TOKEN is not set; roster members are shown by id")
	}

	// Create router
	r := router.New(cfg, router.Deps{
		DB:         sqlDB,
		Queries:    db.New(sqlDB, dialect),
		Registry:   registry,
		Publisher:  publisher,
		Identities: chat.NewCache(identities, cfg.IdentityCacheTTL),
	})

	// Start server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Streaming sessions never go idle, so Shutdown alone would wait for
	// them until the timeout. Closing the registry ends them.
	srv.RegisterOnShutdown(registry.Close)

	go func() {
		slog.Info("starting server", slog.String("addr", srv.Addr), slog.String("database", string(dialect)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", slog.Any("error", err))
	}
}
