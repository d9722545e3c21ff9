package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDirAcceptsShippedMigrations(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestLoyaltySchemaMigrationShape(t *testing.T) {
	entries, err := os.ReadDir("migrations")
	require.NoError(t, err)

	var schema string
	for _, e := range entries {
		if strings.Contains(e.Name(), "create_loyalty_schema") {
			b, readErr := os.ReadFile(filepath.Join("migrations", e.Name()))
			require.NoError(t, readErr)
			schema = string(b)
		}
	}
	require.NotEmpty(t, schema, "loyalty schema migration missing")

	// The partial unique index is what enforces earn idempotency; losing it
	// silently breaks duplicate suppression.
	assert.Contains(t, schema, "uq_points_entries_source")
	assert.Contains(t, schema, "WHERE kind <> 'adjustment'")
	assert.Contains(t, schema, "idx_points_entries_history")
	assert.Contains(t, schema, "chk_points_entries_delta_sign")
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, ValidateDir(dir))
}

func TestValidateDirRejectsMissingHeaders(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_x.sql"), []byte("SELECT 1;"), 0o644))
	assert.Error(t, ValidateDir(dir))
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Expiry Column!")
	require.NoError(t, err)
	assert.Contains(t, filepath.Base(path), "add_expiry_column")
	require.NoError(t, ValidateDir(dir))
}
