// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxwork/fluxwork/internal/api"
	"github.com/fluxwork/fluxwork/internal/cache"
	"github.com/fluxwork/fluxwork/internal/config"
	"github.com/fluxwork/fluxwork/internal/coordinator"
	"github.com/fluxwork/fluxwork/internal/dispatcher"
	"github.com/fluxwork/fluxwork/internal/engine"
	"github.com/fluxwork/fluxwork/internal/log"
	"github.com/fluxwork/fluxwork/internal/registry"
	"github.com/fluxwork/fluxwork/internal/requests"
	"github.com/fluxwork/fluxwork/internal/store"
	"github.com/fluxwork/fluxwork/internal/store/postgres"
	"github.com/fluxwork/fluxwork/internal/store/sqlite"
	"github.com/fluxwork/fluxwork/pkg/httpclient"
	"github.com/fluxwork/fluxwork/pkg/observability"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to config file (default: ~/.config/fluxwork/config.yaml)")
		address     = flag.String("address", "", "Address to listen on (overrides config)")
		dsn         = flag.String("store-dsn", "", "Store connection string (overrides config)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("fluxworkd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	path := *configPath
	if path == "" {
		defaultPath, err := config.ConfigPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to resolve config path: %v\n", err)
			os.Exit(1)
		}
		path = defaultPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *address != "" {
		cfg.Server.Address = *address
	}
	if *dsn != "" {
		cfg.Store.DSN = *dsn
	}

	logCfg := log.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = log.Format(cfg.Log.Format)
	logger := log.New(logCfg)
	slog.SetDefault(logger)

	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("fluxworkd exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	backend, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()

	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = cfg.Dispatcher.Timeout
	clientCfg.RetryAttempts = cfg.Dispatcher.RetryAttempts
	clientCfg.RetryBackoff = cfg.Dispatcher.RetryBackoff
	clientCfg.UserAgent = "fluxworkd/" + version
	client, err := httpclient.New(clientCfg)
	if err != nil {
		return fmt.Errorf("build http client: %w", err)
	}

	disp := dispatcher.New(cfg.Dispatcher.BaseURL, client).WithRateLimit(50, 10)

	reg := registry.New(backend, disp, nil)
	eng := engine.New(cache.New(), reg, disp, nil)

	coord := coordinator.New(backend, eng, logger.With(slog.String("subsystem", "coordinator"))).
		WithTracer(observability.NoopProvider{})

	reqEngine := requests.New(backend, disp, nil, nil, logger.With(slog.String("subsystem", "requests")))

	apiServer := api.New(backend, reg, disp, coord, reqEngine, logger.With(slog.String("subsystem", "api")))

	mux := http.NewServeMux()
	apiServer.RegisterRoutes(mux)
	coord.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fluxworkd listening", slog.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.New(postgres.Config{ConnectionString: cfg.DSN})
	case "sqlite", "":
		return sqlite.New(sqlite.Config{Path: cfg.DSN, WAL: true})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
