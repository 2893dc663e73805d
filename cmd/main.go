package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/Vovarama1992/chatra-operator-console/internal/ai"
	"github.com/Vovarama1992/chatra-operator-console/internal/api"
	"github.com/Vovarama1992/chatra-operator-console/internal/channel"
	"github.com/Vovarama1992/chatra-operator-console/internal/config"
	"github.com/Vovarama1992/chatra-operator-console/internal/console"
	"github.com/Vovarama1992/chatra-operator-console/internal/fanout"
	"github.com/Vovarama1992/chatra-operator-console/internal/journal"
	"github.com/Vovarama1992/chatra-operator-console/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := cfg.Logger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tokens api.TokenSource = api.StaticToken(cfg.AdminToken)
	if cfg.AdminTokenFile != "" {
		tokens = api.FileToken(cfg.AdminTokenFile)
	}

	// --- alert sinks ---
	var (
		sinks  []notify.Sink
		alerts console.AlertReader
		mirror notify.Mirror
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			fatal(logger, "db open", err)
		}
		defer db.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			fatal(logger, "db ping", err)
		}

		repo := journal.NewRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			fatal(logger, "db schema", err)
		}
		sinks = append(sinks, repo)
		alerts = repo
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			fatal(logger, "redis url", err)
		}
		rm := notify.NewRedisMirror(redis.NewClient(opts), "")
		defer rm.Close()
		mirror = rm
	}

	if cfg.AMQPURL != "" {
		pub, err := fanout.New(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			fatal(logger, "amqp", err)
		}
		defer pub.Close()
		sinks = append(sinks, pub)
	}

	var player notify.Player
	if cfg.Sound {
		player = notify.DevicePlayer()
	}

	notifier := notify.New(notify.Options{
		Player:  player,
		Desktop: notify.BeeepDesktop{},
		Mirror:  mirror,
		Sinks:   sinks,
		Logger:  logger,
	})
	notifier.RequestPermission(ctx, notify.StaticPermission(cfg.NotifyPermission))

	// --- drafts ---
	var drafter ai.Drafter
	if cfg.OpenAIKey != "" {
		c, err := ai.NewOpenAIClient(cfg.OpenAIKey, cfg.OpenAIModel, logger)
		if err != nil {
			fatal(logger, "openai", err)
		}
		drafter = c
	}

	// --- engine ---
	ch := channel.New(channel.Config{URL: cfg.ChannelURL}, tokens, logger)
	engine := console.New(console.Options{
		API:                  api.NewClient(cfg.APIBaseURL, tokens, logger),
		Channel:              ch,
		Notifier:             notifier,
		Drafter:              drafter,
		ClearUnreadWhileOpen: cfg.ClearUnreadWhileOpen,
		Logger:               logger,
	})
	defer engine.Close()

	go func() {
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("engine stopped", slog.Any("error", err))
		}
	}()

	if err := ch.Open(ctx); err != nil {
		fatal(logger, "channel open", err)
	}
	defer ch.Close()

	go func() {
		if err := engine.LoadAll(ctx); err != nil {
			logger.Warn("initial load failed", slog.Any("error", err))
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-engine.Notices():
				logger.Warn("notice",
					slog.String("op", n.Op),
					slog.String("session", n.SessionID),
					slog.String("message", n.Message),
				)
			}
		}
	}()

	// --- Router ---
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	console.RegisterRoutes(r, console.NewHandler(engine, alerts, logger))

	// --- health ---
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
	}

	notifier.Wait()
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.Any("error", err))
	os.Exit(1)
}
