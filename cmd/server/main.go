package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"route-optimizer/internal/config"
	"route-optimizer/internal/database"
	"route-optimizer/internal/distance"
	"route-optimizer/internal/geocoding"
	"route-optimizer/internal/handlers"
	"route-optimizer/internal/planner"
	"route-optimizer/internal/server"
	"route-optimizer/internal/sqlite"
)

var interruptSignals = []os.Signal{
	os.Interrupt,
	syscall.SIGTERM,
}

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("fatal error")
	}
}

func run() error {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}

	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), interruptSignals...)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close cache store")
		}
	}()

	calc := distance.NewOSRMCalculator(cfg.OSRMBaseURL, store.DistanceCache())
	geocoder := geocoding.NewNominatimGeocoder(cfg.NominatimBaseURL)
	svc := planner.NewService(geocoder, calc, calc, planner.Options{
		Anneal:         cfg.Anneal(),
		Restarts:       cfg.AnnealRestarts,
		SentinelMeters: cfg.DistanceSentinelMeters,
	})

	h := handlers.New(svc, geocoder, store, cfg.OptimizeTimeout)
	srv := server.New(cfg.ServerAddr, h, cfg.OptimizeTimeout+15*time.Second)

	addr, err := srv.Start()
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	log.Info().Str("addr", addr).Str("cache_backend", cfg.CacheBackend).Msg("route optimizer ready")

	waitGroup, ctx := errgroup.WithContext(ctx)
	waitGroup.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("graceful shutdown HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not gracefully shutdown the server: %w", err)
		}
		log.Info().Msg("HTTP server is stopped")
		return nil
	})

	if err := waitGroup.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func openStore(cfg config.Config) (database.CacheStore, error) {
	if cfg.CacheBackend == "memory" {
		log.Info().Msg("using in-memory distance cache")
		return database.NewMemoryDistanceCache(), nil
	}

	path := cfg.CacheDBPath
	if path == "" {
		var err error
		path, err = database.GetDefaultCachePath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve cache path: %w", err)
		}
	}

	store, err := sqlite.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}
	return store, nil
}
