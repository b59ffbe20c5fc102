// Package mapstore persists the identity mapping between ledger-provider and
// practice-management identifiers. Every reconciliation pass loads the newest
// snapshot, mutates the mapping in memory and writes a fresh snapshot at the
// end; prior snapshots are never touched, so the last complete one always
// survives a crash.
package mapstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/practicebridge/ledgersync/pkg/api"
)

// snapshotPattern matches snapshot files inside the store directory.
const snapshotPattern = "mappings_*.json"

// Mapping holds the three identifier sub-maps. The key namespaces never
// overlap across entity kinds: customer and account keys are source record
// ids, expense keys are composite ExpenseSyncKeys.
type Mapping struct {
	// Customers maps ledger customer id to target contact personId.
	Customers map[string]string `json:"customers"`
	// Accounts maps ledger account id to its display-name category label.
	Accounts map[string]string `json:"accounts"`
	// Expenses maps ExpenseSyncKey to target expenseId.
	Expenses map[string]string `json:"expenses"`
}

// NewMapping returns an empty mapping with all sub-maps allocated.
func NewMapping() Mapping {
	return Mapping{
		Customers: make(map[string]string),
		Accounts:  make(map[string]string),
		Expenses:  make(map[string]string),
	}
}

// ContactID returns the recorded target contact id for a ledger customer.
func (m Mapping) ContactID(customerID string) (string, bool) {
	id, ok := m.Customers[customerID]
	return id, ok
}

// ExpenseID returns the recorded target expense id for a sync key.
func (m Mapping) ExpenseID(key api.ExpenseSyncKey) (string, bool) {
	id, ok := m.Expenses[string(key)]
	return id, ok
}

// Store reads and writes mapping snapshots in a single directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a snapshot store rooted at dir, creating it if needed.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating mapping directory: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Load returns the mapping from the most recently written snapshot, or an
// empty mapping when none exists. A snapshot that cannot be read or parsed is
// logged, skipped and the next newest tried; load never fails a pass.
func (s *Store) Load(ctx context.Context) Mapping {
	paths, err := filepath.Glob(filepath.Join(s.dir, snapshotPattern))
	if err != nil || len(paths) == 0 {
		return NewMapping()
	}

	sort.Slice(paths, func(i, j int) bool {
		return modTime(paths[i]).After(modTime(paths[j]))
	})

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return NewMapping()
		}

		data, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable snapshot", "path", path, "error", err)
			continue
		}

		m := NewMapping()
		if err := json.Unmarshal(data, &m); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "path", path, "error", err)
			continue
		}

		// Unmarshal leaves sub-maps nil when the snapshot omits them.
		if m.Customers == nil {
			m.Customers = make(map[string]string)
		}
		if m.Accounts == nil {
			m.Accounts = make(map[string]string)
		}
		if m.Expenses == nil {
			m.Expenses = make(map[string]string)
		}

		s.logger.Info("loaded mapping snapshot",
			"path", path,
			"customers", len(m.Customers),
			"accounts", len(m.Accounts),
			"expenses", len(m.Expenses),
		)
		return m
	}

	s.logger.Warn("no usable mapping snapshot, starting empty")
	return NewMapping()
}

// Save writes the mapping as a new uuid-suffixed snapshot and returns the
// snapshot id. Existing snapshots are left untouched.
func (s *Store) Save(ctx context.Context, m Mapping) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling mapping: %w", err)
	}

	id := uuid.NewString()
	path := filepath.Join(s.dir, fmt.Sprintf("mappings_%s.json", id))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}

	s.logger.Info("wrote mapping snapshot", "path", path)
	return id, nil
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
