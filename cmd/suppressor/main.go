package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"signals/internal/adapter/repo"
	"signals/internal/infra"
	"signals/internal/suppress"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("suppressor: db connection failed")
	}
	defer pool.Close()

	counters := repo.NewCounterRepository(pool)
	if err := counters.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("suppressor: failed to ensure schema")
	}

	sweeper := suppress.NewSweeper(counters, logger, cfg.KAnonymityFloor, cfg.RetentionDays, cfg.SuppressorInterval)

	logger.Info().
		Int("floor", cfg.KAnonymityFloor).
		Int("retention_days", cfg.RetentionDays).
		Dur("interval", cfg.SuppressorInterval).
		Msg("suppressor: started")

	if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("suppressor: stopped with error")
	}
	logger.Info().Msg("suppressor: stopped")
}
