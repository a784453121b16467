package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/atrium-hq/atrium/internal/api"
	"github.com/atrium-hq/atrium/internal/config"
	"github.com/atrium-hq/atrium/internal/kv"
	"github.com/atrium-hq/atrium/internal/respond"
	"github.com/atrium-hq/atrium/internal/server"
	"github.com/atrium-hq/atrium/internal/store"
	"github.com/atrium-hq/atrium/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	respond.SetDebug(cfg.Debug)

	shutdownTracer, err := telemetry.InitTracer("atrium-api", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	st, err := store.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	var kvStore kv.Store
	if cfg.Redis.Addr != "" {
		redisStore, err := kv.NewRedis(cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisStore.Close()
		kvStore = redisStore
	} else {
		logger.Warn("no redis address configured; rate limiting and response caching are disabled")
	}

	srv := server.New(cfg.Server.Port, logger, st, kvStore, cfg.CORS.Origins)

	handlers := api.New(st, time.Duration(cfg.Auth.SessionTTLHours)*time.Hour, cfg.Auth.SecureCookies)
	handlers.Register(srv)

	// Sweep expired sessions hourly instead of checking rows per request.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every 1h", func() {
		n, err := st.SweepExpired(context.Background())
		if err != nil {
			logger.Error("session sweep failed", slog.String("error", err.Error()))
			return
		}
		if n > 0 {
			logger.Info("swept expired sessions", slog.Int64("count", n))
		}
	}); err != nil {
		log.Fatalf("Failed to schedule session sweep: %v", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
}
