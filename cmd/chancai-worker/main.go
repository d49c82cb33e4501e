package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chancai/internal/config"
	"chancai/internal/db"
	"chancai/internal/logger"
	"chancai/internal/mq"
	"chancai/internal/store"
	"chancai/internal/telemetry"
	"chancai/internal/weather"
	"chancai/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorker()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logg := logger.New("chancai-worker", cfg.LogLevel)
	otelShutdown, err := telemetry.Init(ctx, "chancai-worker", logg)
	if err != nil {
		logg.Error("opentelemetry init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logg.Error("opentelemetry shutdown failed", "err", err)
		}
	}()

	dbConn, err := db.Connect(ctx, cfg.DatabaseURL, logg)
	if err != nil {
		logg.Error("db connection failed", "err", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	st := store.New(dbConn, logg)
	if err := st.EnsureSchema(ctx); err != nil {
		logg.Error("schema migration failed", "err", err)
		os.Exit(1)
	}

	mqClient := mq.NewClient(cfg.RabbitURL, logg)
	defer mqClient.Close()

	rdb := config.NewRedisClient(cfg.Redis)
	var climaSvc *weather.Service
	if rdb != nil {
		defer rdb.Close()
		climaSvc = weather.NewService(weather.NewClient(cfg.Weather), rdb, cfg.WeatherRefreshInterval+time.Minute, logg)
	} else {
		logg.Warn("redis unavailable, weather refresh loop disabled")
	}

	w, err := worker.New(cfg, st, mqClient, climaSvc, logg)
	if err != nil {
		logg.Error("worker init failed", "err", err)
		os.Exit(1)
	}
	defer w.Close()

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error("worker exited", "err", err)
		os.Exit(1)
	}
}
