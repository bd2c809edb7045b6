// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jason-s-yu/tictactoe/internal/auth"
	"github.com/jason-s-yu/tictactoe/internal/cache"
	"github.com/jason-s-yu/tictactoe/internal/config"
	"github.com/jason-s-yu/tictactoe/internal/handlers"
	"github.com/jason-s-yu/tictactoe/internal/matchmaking"
	"github.com/jason-s-yu/tictactoe/internal/metrics"
	"github.com/jason-s-yu/tictactoe/internal/middleware"
	"github.com/jason-s-yu/tictactoe/internal/telegram"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}
	logger := newLogger(cfg)
	metrics.Init()

	// avatar lookup: telegram, optionally fronted by redis
	var avatars matchmaking.AvatarResolver
	var rdb *redis.Client
	if cfg.AvatarsEnabled() {
		tg := telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramAPIBase, logger)
		avatars = tg
		if cfg.RedisAddr != "" {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			rdb, err = cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
			cancel()
			if err != nil {
				logger.WithError(err).Warn("redis unavailable, avatar lookups are uncached")
			} else {
				avatars = cache.NewAvatarCache(rdb, tg, cfg.AvatarCacheTTL, logger)
			}
		}
	} else {
		logger.Info("TELEGRAM_BOT_TOKEN not set, avatar backfill disabled")
	}

	var signer *auth.Signer
	if cfg.TokensEnabled() {
		signer = auth.NewSigner(cfg.IdentityTokenSecret, cfg.IdentityTokenTTL)
	}

	hub := handlers.NewHub(logger)
	svc := matchmaking.New(matchmaking.Config{
		MaxLobbies:     cfg.MaxLobbies,
		ConfirmTimeout: cfg.MatchConfirmTimeout,
	}, matchmaking.NewRegistry(avatars, logger), nil, matchmaking.WithLogger(logger))
	svc.SetNotifier(hub)

	srv := &handlers.Server{
		Service:                 svc,
		Hub:                     hub,
		Logger:                  logger,
		Signer:                  signer,
		RequireVerifiedIdentity: cfg.RequireVerifiedIdentity,
		OriginPatterns:          cfg.OriginPatterns,
		AdminKey:                cfg.AdminKey,
	}

	mux := http.NewServeMux()
	handlers.Routes(mux, srv)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           middleware.Recover(logger)(middleware.LogMiddleware(logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Running on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server exited")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.CloseAll()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("http shutdown")
	}
	svc.Close()
	if rdb != nil {
		rdb.Close()
	}
}
