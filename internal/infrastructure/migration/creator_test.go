package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add listings table", "add_listings_table"},
		{"Add-Listings-Table", "add_listings_table"},
		{"ADD_LISTINGS_TABLE", "add_listings_table"},
		{"add__listings__table", "add_listings_table"},
		{"index ebay offers 2", "index_ebay_offers_2"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"trailing_", "trailing"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration_NumbersSequentially(t *testing.T) {
	dir := t.TempDir()

	first, err := CreateMigration(dir, "create items", "Items table")
	require.NoError(t, err)
	assert.Equal(t, uint(1), first.Version)
	assert.Equal(t, filepath.Join(dir, "000001_create_items.up.sql"), first.UpPath)
	assert.Equal(t, filepath.Join(dir, "000001_create_items.down.sql"), first.DownPath)

	second, err := CreateMigration(dir, "Add Listing Index", "")
	require.NoError(t, err)
	assert.Equal(t, uint(2), second.Version)
	assert.Equal(t, "000002_add_listing_index", second.FileBase())

	up, err := os.ReadFile(first.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- Migration: create items")
	assert.Contains(t, string(up), "-- Description: Items table")

	down, err := os.ReadFile(first.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "(Rollback)")
}

func TestCreateMigration_ContinuesAfterExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000007_seed.up.sql"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000007_seed.down.sql"), nil, 0o644))

	mf, err := CreateMigration(dir, "next", "")
	require.NoError(t, err)
	assert.Equal(t, uint(8), mf.Version)
}

func TestCreateMigration_EmptyName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestListMigrations(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000010_late.up.sql",
		"000010_late.down.sql",
		"000002_early.up.sql",
		"000002_early.down.sql",
		"README.md",
		"notes.up.sql",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "000003_dir.up.sql"), 0o755))

	migrations, err := ListMigrations(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, uint(2), migrations[0].Version)
	assert.Equal(t, "early", migrations[0].Name)
	assert.Equal(t, uint(10), migrations[1].Version)
	assert.Equal(t, filepath.Join(dir, "000010_late.down.sql"), migrations[1].DownPath)
}

func TestListMigrations_MissingDirectory(t *testing.T) {
	migrations, err := ListMigrations(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, migrations)
}

func TestPending(t *testing.T) {
	all := []Migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}

	assert.Len(t, Pending(all, 0), 3)
	assert.Equal(t, []Migration{{Version: 3, Name: "c"}}, Pending(all, 2))
	assert.Empty(t, Pending(all, 3))
}

// The shipped migrations must come in complete, gap-free pairs
func TestRepositoryMigrations(t *testing.T) {
	dir := filepath.Join("..", "..", "..", "migrations")
	migrations, err := ListMigrations(dir)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.Equal(t, uint(i+1), m.Version, m.FileBase())
		_, err := os.Stat(m.DownPath)
		assert.NoError(t, err, "missing down file for %s", m.FileBase())
	}
}
