/*
main.go - Points engine server entry point

PURPOSE:
  Starts the HTTP server backed by a SQLite ledger store.

USAGE:
  server [flags]

FLAGS:
  -config string       Path to a TOML config file (optional)
  -port int            Listen port (overrides config)
  -db string           SQLite database path (overrides config)
  -admin-token string  Admin bearer token (overrides config)

The admin token can also be supplied via POINTS_ADMIN_TOKEN. With no
token configured, admin operations are rejected.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hotwire/points-engine/api"
	"github.com/hotwire/points-engine/config"
	"github.com/hotwire/points-engine/store/sqlite"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to TOML config file")
		port       = flag.Int("port", 0, "listen port (overrides config)")
		dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
		adminToken = flag.String("admin-token", "", "admin bearer token (overrides config)")
	)
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}
	if *adminToken != "" {
		cfg.Auth.AdminToken = *adminToken
	}
	if cfg.Auth.AdminToken == "" {
		cfg.Auth.AdminToken = os.Getenv("POINTS_ADMIN_TOKEN")
	}
	if cfg.Auth.AdminToken == "" {
		logger.Warn("no admin token configured, admin operations will be rejected")
	}

	store, err := sqlite.New(cfg.Storage.Path)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("path", cfg.Storage.Path), zap.Error(err))
	}
	defer store.Close()

	handler := api.NewHandler(store, logger)
	router := api.NewRouter(handler, logger, api.RouterConfig{
		AdminToken:     cfg.Auth.AdminToken,
		AllowedOrigins: cfg.Server.CORSOrigins,
		MetricsEnabled: cfg.Metrics.Enabled,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("db", cfg.Storage.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal("server error", zap.Error(err))
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	logger.Info("server stopped")
}
