// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/pkg/ceremony"
	ceremonyhttp "github.com/jeremyhahn/go-passkey/pkg/ceremony/http"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
)

var (
	// Version information (set during build)
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "/etc/passkey/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	// Show version if requested
	if *showVersion {
		fmt.Printf("go-passkey server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Git Commit: %s\n", commit)
		fmt.Printf("  Built:      %s\n", date)
		os.Exit(0)
	}

	// Check for config file override via environment
	if envConfig := os.Getenv("PASSKEY_CONFIG"); envConfig != "" {
		*configPath = envConfig
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := cfg.Logging.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("Starting passkey server",
		"config", *configPath,
		"version", version,
		"rp_id", cfg.WebAuthn.RPID,
		"address", cfg.Server.Address())

	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	engine, challenges, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		metrics.Enable()
		collector := metrics.StartResourceCollector(rootCtx, cfg.Metrics.CollectInterval)
		defer collector.Stop()
	}

	// Expired challenges from abandoned ceremonies accumulate until swept.
	go sweepChallenges(rootCtx, challenges, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      buildRouter(cfg, engine, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tlsConfig, err := cfg.TLS.LoadTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to configure TLS: %w", err)
	}
	srv.TLSConfig = tlsConfig

	// Setup signal handler for graceful shutdown
	shutdownCtx := setupSignalHandler(logger)

	errChan := make(chan error, 1)
	go func() {
		var err error
		if tlsConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	logger.Info("Server started", "address", cfg.Server.Address(), "tls", tlsConfig != nil)

	// Wait for shutdown signal or error
	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return err
	}

	// Gracefully shutdown
	shutdownTimeout, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownTimeout); err != nil {
		return fmt.Errorf("error during server shutdown: %w", err)
	}

	return nil
}

// buildEngine wires the ceremony engine with in-memory stores and, when
// configured, the JWT token generator.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*ceremony.Engine, *ceremony.MemoryChallengeStore, error) {
	challenges := ceremony.NewMemoryChallengeStore()

	params := ceremony.EngineParams{
		Config:          &cfg.WebAuthn,
		UserStore:       ceremony.NewMemoryUserStore(),
		ChallengeStore:  challenges,
		CredentialStore: ceremony.NewMemoryCredentialStore(),
		Observer:        metrics.CeremonyObserver{},
		Logger:          logger,
	}

	if cfg.JWT != nil && cfg.JWT.Enabled {
		generator, err := cfg.JWT.NewTokenGenerator()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to configure JWT signing: %w", err)
		}
		params.TokenGenerator = generator
		logger.Info("JWT token issuance enabled", "issuer", generator.Issuer())
	}

	engine, err := ceremony.NewEngine(params)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create ceremony engine: %w", err)
	}
	return engine, challenges, nil
}

// buildRouter assembles the chi router with ceremony, metrics, and
// health endpoints.
func buildRouter(cfg *config.Config, engine *ceremony.Engine, logger *slog.Logger) http.Handler {
	handler := ceremonyhttp.NewHandler(engine).WithLogger(logger)

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Metrics.Enabled {
		r.Use(metrics.HTTPMiddleware)
	}

	r.Route("/api/v1/webauthn", func(r chi.Router) {
		ceremonyhttp.MountChi(r, handler)
	})

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promhttp.Handler())
	}

	if cfg.Health.Enabled {
		r.Get(cfg.Health.Path, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
	}

	return r
}

// sweepChallenges periodically removes expired challenge sessions.
func sweepChallenges(ctx context.Context, store *ceremony.MemoryChallengeStore, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := store.Cleanup(); removed > 0 {
				logger.Debug("Removed expired challenge sessions", "count", removed)
			}
		}
	}
}

// setupSignalHandler sets up signal handling for graceful shutdown
func setupSignalHandler(logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}
