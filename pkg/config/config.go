// Package config loads configuration for the ledgersync binaries from
// environment variables, with an optional JSON config file layered underneath.
package config

import (
	"fmt"
	"os"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// SyncConfig configures one reconciliation pass.
type SyncConfig struct {
	// TargetURL is the base URL of the practice-management API.
	// Environment variable: LEDGERSYNC_TARGET_URL
	TargetURL string `koanf:"LEDGERSYNC_TARGET_URL"`

	// ClientID and ClientSecret are exchanged for a bearer token.
	ClientID     string `koanf:"LEDGERSYNC_CLIENT_ID"`
	ClientSecret string `koanf:"LEDGERSYNC_CLIENT_SECRET"`

	// SourceURL is the base URL of the ledger provider API.
	SourceURL string `koanf:"LEDGERSYNC_SOURCE_URL"`

	// EndUserID selects the ledger tenant whose records are synchronized.
	EndUserID string `koanf:"LEDGERSYNC_END_USER_ID"`

	// SyncItemLines selects item-line mode; when false, account-classified
	// lines are synchronized instead. Exactly one mode is active per pass.
	SyncItemLines bool `koanf:"LEDGERSYNC_SYNC_ITEM_LINES"`

	// MappingDir is where identity mapping snapshots live.
	MappingDir string `koanf:"LEDGERSYNC_MAPPING_DIR"`
}

// Validate checks that the fields without usable defaults are set.
func (c SyncConfig) Validate() error {
	if c.TargetURL == "" {
		return fmt.Errorf("LEDGERSYNC_TARGET_URL is required")
	}
	if c.SourceURL == "" {
		return fmt.Errorf("LEDGERSYNC_SOURCE_URL is required")
	}
	if c.EndUserID == "" {
		return fmt.Errorf("LEDGERSYNC_END_USER_ID is required")
	}
	return nil
}

// PostgresConfig holds PostgreSQL connection settings for the mock server's
// document store.
type PostgresConfig struct {
	Host     string `koanf:"MOCKPM_POSTGRES_HOST"`
	Port     int    `koanf:"MOCKPM_POSTGRES_PORT"`
	Database string `koanf:"MOCKPM_POSTGRES_DB"`
	User     string `koanf:"MOCKPM_POSTGRES_USER"`
	Password string `koanf:"MOCKPM_POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"MOCKPM_POSTGRES_SSLMODE"`
}

// ServerConfig configures the mock practice-management API server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":5000".
	Addr string `koanf:"MOCKPM_ADDR"`

	// ClientID and ClientSecret are the fixed credentials the token
	// endpoint accepts.
	ClientID     string `koanf:"MOCKPM_CLIENT_ID"`
	ClientSecret string `koanf:"MOCKPM_CLIENT_SECRET"`

	// Store selects the document store backend: "file" or "postgres".
	Store string `koanf:"MOCKPM_STORE"`

	// DataDir is the cache directory for the file store.
	DataDir string `koanf:"MOCKPM_DATA_DIR"`

	Postgres PostgresConfig
}

// BridgeConfig configures the QBWC SOAP bridge.
type BridgeConfig struct {
	// Addr is the listen address, e.g. ":5001".
	Addr string `koanf:"QBWC_ADDR"`

	// Username is the web-connector account the bridge authenticates.
	Username string `koanf:"QBWC_USERNAME"`
	Password string `koanf:"QBWC_PASSWORD"`

	// Target API credentials, shared with the sync CLI.
	TargetURL    string `koanf:"LEDGERSYNC_TARGET_URL"`
	ClientID     string `koanf:"LEDGERSYNC_CLIENT_ID"`
	ClientSecret string `koanf:"LEDGERSYNC_CLIENT_SECRET"`
}

// Load populates cfg (a pointer to one of the config structs) from an optional
// JSON file followed by environment variables, env taking precedence.
func Load(configPath string, cfg any) error {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), kjson.Parser()); err != nil {
				return fmt.Errorf("loading config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}

	// FlatPaths matching only reaches top-level tagged fields, so nested
	// structs bind in a second pass against the same flat key set.
	if sc, ok := cfg.(*ServerConfig); ok {
		if err := k.UnmarshalWithConf("", &sc.Postgres, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
			return fmt.Errorf("unmarshaling postgres config: %w", err)
		}
	}

	return nil
}

// Defaults applied by the binaries when the corresponding setting is unset.
const (
	DefaultServerAddr   = ":5000"
	DefaultBridgeAddr   = ":5001"
	DefaultDataDir      = "cache"
	DefaultMappingDir   = "."
	DefaultClientID     = "test"
	DefaultClientSecret = "secret"
)
