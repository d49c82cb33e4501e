package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chancai/internal/analyst"
	"chancai/internal/api"
	"chancai/internal/config"
	"chancai/internal/db"
	"chancai/internal/gfw"
	"chancai/internal/informe"
	"chancai/internal/logger"
	"chancai/internal/mq"
	"chancai/internal/shiptracking"
	"chancai/internal/store"
	"chancai/internal/telemetry"
	"chancai/internal/weather"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPI()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logg := logger.New("chancai-api", cfg.LogLevel)
	otelShutdown, err := telemetry.Init(ctx, "chancai-api", logg)
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
	if rdb != nil {
		defer rdb.Close()
	} else {
		logg.Warn("redis unavailable, clima cache and rate limiting disabled")
	}

	climaSvc := weather.NewService(weather.NewClient(cfg.Weather), rdb, cfg.ClimaCacheTTL, logg)

	engine := informe.NewEngine(
		shiptracking.NewClient(cfg.MyShipTracking),
		gfw.NewClient(cfg.GFW),
		weather.NewClient(cfg.Weather),
		analyst.NewClient(cfg.OpenAI),
		logg,
	)

	server := api.NewServer(cfg, st, mqClient, engine, climaSvc, rdb, logg)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}
