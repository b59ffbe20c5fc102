package mapstore

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLoadWithoutSnapshotsReturnsEmptyMapping(t *testing.T) {
	store, err := New(t.TempDir(), testLogger())
	require.NoError(t, err)

	m := store.Load(context.Background())
	assert.Empty(t, m.Customers)
	assert.Empty(t, m.Accounts)
	assert.Empty(t, m.Expenses)
	assert.NotNil(t, m.Customers, "sub-maps are always allocated")
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, testLogger())
	require.NoError(t, err)

	m := NewMapping()
	m.Customers["cust-1"] = "person-1"
	m.Accounts["acct-1"] = "Travel"
	m.Expenses["inv-1:line-1"] = "expense-1"

	id, err := store.Save(context.Background(), m)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.FileExists(t, filepath.Join(dir, "mappings_"+id+".json"))

	loaded := store.Load(context.Background())
	assert.Equal(t, m, loaded)
}

func TestLoadPicksNewestSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, testLogger())
	require.NoError(t, err)

	old := NewMapping()
	old.Customers["cust-1"] = "stale"
	oldID, err := store.Save(context.Background(), old)
	require.NoError(t, err)

	fresh := NewMapping()
	fresh.Customers["cust-1"] = "current"
	freshID, err := store.Save(context.Background(), fresh)
	require.NoError(t, err)

	// Filesystem mtime granularity can make back-to-back writes tie, so pin
	// the ordering explicitly.
	now := time.Now()
	require.NoError(t, os.Chtimes(filepath.Join(dir, "mappings_"+oldID+".json"), now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "mappings_"+freshID+".json"), now, now))

	loaded := store.Load(context.Background())
	assert.Equal(t, "current", loaded.Customers["cust-1"])
}

func TestLoadSkipsCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, testLogger())
	require.NoError(t, err)

	good := NewMapping()
	good.Customers["cust-1"] = "person-1"
	goodID, err := store.Save(context.Background(), good)
	require.NoError(t, err)

	corruptPath := filepath.Join(dir, "mappings_corrupt.json")
	require.NoError(t, os.WriteFile(corruptPath, []byte("{not json"), 0o600))

	now := time.Now()
	require.NoError(t, os.Chtimes(filepath.Join(dir, "mappings_"+goodID+".json"), now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(corruptPath, now, now))

	loaded := store.Load(context.Background())
	assert.Equal(t, "person-1", loaded.Customers["cust-1"], "corrupt newest snapshot falls back to the good one")
}

func TestLoadRepairsMissingSubMaps(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, testLogger())
	require.NoError(t, err)

	path := filepath.Join(dir, "mappings_partial.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"customers":{"cust-1":"person-1"}}`), 0o600))

	loaded := store.Load(context.Background())
	assert.Equal(t, "person-1", loaded.Customers["cust-1"])
	assert.NotNil(t, loaded.Accounts)
	assert.NotNil(t, loaded.Expenses)
}

func TestSaveLeavesPriorSnapshotsIntact(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir, testLogger())
	require.NoError(t, err)

	_, err = store.Save(context.Background(), NewMapping())
	require.NoError(t, err)
	_, err = store.Save(context.Background(), NewMapping())
	require.NoError(t, err)

	paths, err := filepath.Glob(filepath.Join(dir, "mappings_*.json"))
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}
