package db

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTestMigrations lays out a two-step migration set in a temp
// directory and returns its path.
func writeTestMigrations(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "migrations")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	files := map[string]string{
		"000001_create_shapes.up.sql":   `CREATE TABLE IF NOT EXISTS shapes (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`,
		"000001_create_shapes.down.sql": `DROP TABLE IF EXISTS shapes;`,
		"000002_add_school.up.sql":      `ALTER TABLE shapes ADD COLUMN school TEXT;`,
		"000002_add_school.down.sql": `CREATE TABLE shapes_new (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
INSERT INTO shapes_new (id, name) SELECT id, name FROM shapes;
DROP TABLE shapes;
ALTER TABLE shapes_new RENAME TO shapes;`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestMigrateVersionBeforeAnyMigrations(t *testing.T) {
	db := newTestDB(t)
	dir := writeTestMigrations(t)

	version, dirty, err := db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)
}

func TestMigrateUpAppliesAllSteps(t *testing.T) {
	db := newTestDB(t)
	dir := writeTestMigrations(t)

	require.NoError(t, db.MigrateUp(dir))

	version, dirty, err := db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
	assert.True(t, tableExists(t, db, "shapes"))

	// Re-running with nothing pending is not an error.
	require.NoError(t, db.MigrateUp(dir))
}

func TestMigrateDownRollsBackOneStep(t *testing.T) {
	db := newTestDB(t)
	dir := writeTestMigrations(t)

	require.NoError(t, db.MigrateUp(dir))
	require.NoError(t, db.MigrateDown(dir))

	version, dirty, err := db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
	assert.True(t, tableExists(t, db, "shapes"))

	require.NoError(t, db.MigrateDown(dir))

	version, _, err = db.MigrateVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, tableExists(t, db, "shapes"))
}
