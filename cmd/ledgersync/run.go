package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/practicebridge/ledgersync/pkg/config"
	"github.com/practicebridge/ledgersync/pkg/mapstore"
	"github.com/practicebridge/ledgersync/pkg/reconciler"
	"github.com/practicebridge/ledgersync/pkg/source"
	"github.com/practicebridge/ledgersync/pkg/target"
)

// configFile is the optional JSON config layered under the environment.
const configFile = "config.json"

// runSync executes one reconciliation pass.
func runSync(logger *slog.Logger) error {
	var cfg config.SyncConfig
	if err := config.Load(configFile, &cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.MappingDir == "" {
		cfg.MappingDir = config.DefaultMappingDir
	}

	mode := reconciler.AccountLines
	if cfg.SyncItemLines {
		mode = reconciler.ItemLines
	}

	logger.Info("configuration loaded",
		"source", cfg.SourceURL,
		"target", cfg.TargetURL,
		"end_user", cfg.EndUserID,
		"mode", mode.String(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	store, err := mapstore.New(cfg.MappingDir, logger.With("component", "mapstore"))
	if err != nil {
		return fmt.Errorf("opening mapping store: %w", err)
	}

	src := source.New(source.Config{
		BaseURL:   cfg.SourceURL,
		EndUserID: cfg.EndUserID,
	}, logger.With("component", "source"))

	tgt := target.New(ctx, target.Config{
		BaseURL:      cfg.TargetURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, logger.With("component", "target"))

	rec := reconciler.New(src, tgt, store, mode, logger.With("component", "reconciler"))

	if _, err := rec.Run(ctx); err != nil {
		return fmt.Errorf("sync pass: %w", err)
	}
	return nil
}
