// Command mockpm serves the mock practice-management API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/practicebridge/ledgersync/internal/server"
	"github.com/practicebridge/ledgersync/internal/server/store"
	filestore "github.com/practicebridge/ledgersync/internal/server/store/file"
	pgstore "github.com/practicebridge/ledgersync/internal/server/store/postgres"
	"github.com/practicebridge/ledgersync/pkg/config"
	"github.com/practicebridge/ledgersync/pkg/logging"
)

func main() {
	logger := logging.Setup(logging.FromEnv())

	var cfg config.ServerConfig
	if err := config.Load("config.json", &cfg); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultServerAddr
	}
	if cfg.DataDir == "" {
		cfg.DataDir = config.DefaultDataDir
	}
	if cfg.ClientID == "" {
		cfg.ClientID = config.DefaultClientID
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = config.DefaultClientSecret
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docs, err := newStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open document store", "error", err)
		os.Exit(1)
	}
	defer docs.Close()

	srv := server.New(server.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Store:        docs,
		Logger:       logger.With("component", "server"),
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("mockpm listening", "addr", cfg.Addr, "store", storeName(cfg))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("mockpm stopped")
}

func newStore(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (store.Store, error) {
	if storeName(cfg) == "postgres" {
		return pgstore.New(ctx, cfg.Postgres, logger.With("component", "postgres_store"))
	}
	return filestore.New(cfg.DataDir, logger.With("component", "file_store"))
}

func storeName(cfg config.ServerConfig) string {
	if cfg.Store == "" {
		return "file"
	}
	return cfg.Store
}
