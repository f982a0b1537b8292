package migrator

import (
	"database/sql"
	"path/filepath"
	"testing"

	"drilltrack/internal/util/logger/handlers/slogdiscard"
	"drilltrack/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.sqlite"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestMigrator_Sources(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{name: "embedded", config: Config{FS: migrations.FS}},
		{name: "directory", config: Config{MigrationsPath: "../../migrations"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := openDB(t)
			m := NewMigrator(db, tt.config, slogdiscard.NewDiscardLogger())

			require.NoError(t, m.MigrateUp())
			assert.True(t, tableExists(t, db, "survey_runs"))
			assert.True(t, tableExists(t, db, "survey_points"))

			version, dirty, err := m.GetMigrationVersion()
			require.NoError(t, err)
			assert.Equal(t, uint(2), version)
			assert.False(t, dirty)

			// second run is a no-op
			require.NoError(t, m.MigrateUp())
		})
	}
}

func TestMigrator_RollbackAndTo(t *testing.T) {
	db := openDB(t)
	m := NewMigrator(db, Config{FS: migrations.FS}, slogdiscard.NewDiscardLogger())

	version, _, err := m.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, m.MigrateTo(1))
	version, _, err = m.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, m.MigrateUp())
	require.NoError(t, m.MigrateDownN(1))
	version, _, err = m.GetMigrationVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, m.MigrateDown())
	assert.False(t, tableExists(t, db, "survey_runs"))
}

func TestMigrator_InvalidDirection(t *testing.T) {
	m := NewMigrator(openDB(t), Config{FS: migrations.FS}, slogdiscard.NewDiscardLogger())
	assert.Error(t, m.RunMigrations("sideways"))
}
