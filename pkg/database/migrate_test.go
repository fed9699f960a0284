package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationNames_SortedSQLOnly(t *testing.T) {
	// Setup
	fsys := fstest.MapFS{
		"migrations/002_recordings.sql":    {Data: []byte("SELECT 2")},
		"migrations/001_live_sessions.sql": {Data: []byte("SELECT 1")},
		"migrations/README.md":             {Data: []byte("notes")},
		"migrations/old/003_skip.sql":      {Data: []byte("SELECT 3")},
	}

	// Execute
	names, err := migrationNames(fsys)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"001_live_sessions.sql", "002_recordings.sql"}, names)
}

func TestMigrationNames_Embedded(t *testing.T) {
	names, err := MigrationNames()

	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_live_sessions.sql", names[0])
}
