// Command qbwcbridge serves the QuickBooks Web Connector endpoint and relays
// qbXML query results into the practice-management API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/practicebridge/ledgersync/pkg/config"
	"github.com/practicebridge/ledgersync/pkg/logging"
	"github.com/practicebridge/ledgersync/pkg/qbwc"
	"github.com/practicebridge/ledgersync/pkg/target"
)

func main() {
	logger := logging.Setup(logging.FromEnv())

	var cfg config.BridgeConfig
	if err := config.Load("config.json", &cfg); err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Addr == "" {
		cfg.Addr = config.DefaultBridgeAddr
	}
	if cfg.Username == "" {
		cfg.Username = "sync_user"
	}
	if cfg.TargetURL == "" {
		logger.Error("LEDGERSYNC_TARGET_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tgt := target.New(ctx, target.Config{
		BaseURL:      cfg.TargetURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, logger.With("component", "target"))

	service := qbwc.New(qbwc.Config{
		Username: cfg.Username,
		Password: cfg.Password,
	}, tgt, logger.With("component", "qbwc"))

	router := gin.New()
	router.Use(gin.Recovery())
	service.Register(router)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
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

	logger.Info("qbwcbridge listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("qbwcbridge stopped")
}
