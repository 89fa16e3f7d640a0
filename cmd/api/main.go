package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"signals/internal/adapter/repo"
	"signals/internal/http/handlers"
	httpapi "signals/internal/http/httpapi"
	"signals/internal/ident"
	"signals/internal/infra"
	"signals/internal/infra/geoip"
	"signals/internal/validate"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	counters := repo.NewCounterRepository(dbpool)
	if err := counters.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}

	countries, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open geoip database")
	}
	if countries != nil {
		defer countries.Close()
	}
	var resolver ident.CountryResolver
	if countries != nil {
		resolver = countries
	}

	app := handlers.NewApp(
		infra.NewSQLRunner(dbpool, logger),
		counters,
		validate.DefaultPolicy(),
		cfg.KAnonymityFloor,
		logger,
	)

	router := httpapi.NewRouter(app, logger, ident.NewDeriver(resolver), cfg.RateLimitPerWindow, cfg.RateLimitWindow)

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("signals API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
