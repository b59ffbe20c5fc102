package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/practicebridge/ledgersync/pkg/config"
	"github.com/practicebridge/ledgersync/pkg/source"
	"github.com/practicebridge/ledgersync/pkg/target"
)

// runStatus checks configuration and adapter connectivity without touching
// any record.
func runStatus(logger *slog.Logger) error {
	fmt.Println("=== Ledgersync Status ===")
	fmt.Println()

	allGood := true

	var cfg config.SyncConfig
	fmt.Print("Configuration: ")
	if err := config.Load(configFile, &cfg); err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else if err := cfg.Validate(); err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else {
		fmt.Println("✓ Loaded")
	}

	if cfg.MappingDir == "" {
		cfg.MappingDir = config.DefaultMappingDir
	}
	fmt.Printf("Mapping snapshots (%s): ", cfg.MappingDir)
	snapshots, err := filepath.Glob(filepath.Join(cfg.MappingDir, "mappings_*.json"))
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		allGood = false
	} else if len(snapshots) == 0 {
		fmt.Println("⚠ None yet (first pass starts empty)")
	} else {
		fmt.Printf("✓ %d found\n", len(snapshots))
	}

	if cfg.Validate() == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fmt.Print("Ledger source API: ")
		src := source.New(source.Config{BaseURL: cfg.SourceURL, EndUserID: cfg.EndUserID}, logger)
		if _, err := src.ListCustomers(ctx); err != nil {
			fmt.Printf("✗ %v\n", err)
			allGood = false
		} else {
			fmt.Println("✓ Connected")
		}

		fmt.Print("Target API: ")
		tgt := target.New(ctx, target.Config{
			BaseURL:      cfg.TargetURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
		}, logger)
		if _, err := tgt.ListContacts(ctx); err != nil {
			fmt.Printf("✗ %v\n", err)
			allGood = false
		} else {
			fmt.Println("✓ Connected")
		}
	}

	fmt.Println()
	if allGood {
		fmt.Println("Status: ✓ Ready to run")
	} else {
		fmt.Println("Status: ✗ Configuration issues detected")
	}
	return nil
}
