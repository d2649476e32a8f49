// Calldrop - Radio Call Upload Ingestion Server
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/calldrop/calldrop

// Command server runs the call upload ingestion service.
//
// The server handles graceful shutdown on SIGINT and SIGTERM: in-flight
// uploads get the configured drain window before the listener closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/calldrop/calldrop/internal/api"
	"github.com/calldrop/calldrop/internal/config"
	"github.com/calldrop/calldrop/internal/database"
	"github.com/calldrop/calldrop/internal/ingest"
	"github.com/calldrop/calldrop/internal/keyring"
	"github.com/calldrop/calldrop/internal/logging"
	"github.com/calldrop/calldrop/internal/ratelimit"
	"github.com/calldrop/calldrop/internal/storage"
	"github.com/calldrop/calldrop/internal/validation"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server failed")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("version", api.Version).
		Str("storage_strategy", cfg.Storage.Strategy).
		Str("db_driver", cfg.Database.Driver).
		Msg("starting calldrop")

	keys, err := keyring.New(cfg.Security.APIKeys)
	if err != nil {
		return fmt.Errorf("load API keys: %w", err)
	}
	if keys.OpenMode() {
		logging.Warn().Msg("no API keys configured: accepting uploads from anyone")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := database.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer repo.Close()

	store, err := storage.New(cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	limiter := ratelimit.New(cfg.Security.RateLimit)
	if cfg.Security.RateLimit.Disabled {
		logging.Warn().Msg("rate limiting disabled")
	}

	pipeline := ingest.New(keys, limiter, store, repo, validation.Limits{
		MaxAudioBytes: cfg.Storage.MaxAudioBytes,
		MinAudioBytes: cfg.Storage.MinAudioBytes,
	})

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port)),
		Handler:      api.NewServer(pipeline, repo, *cfg).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logging.Info().Msg("shutdown signal received, draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("forced shutdown after drain timeout")
		srv.Close()
	}

	logging.Info().Msg("stopped")
	return nil
}
