package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationFiles_Paired(t *testing.T) {
	entries, err := fs.Glob(MigrationFiles, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range entries {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	require.Equal(t, ups, downs)
}

func TestMigrationFiles_CreateGuestSessions(t *testing.T) {
	data, err := fs.ReadFile(MigrationFiles, "001_create_guest_sessions.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(data), "PRIMARY KEY (session_id, key)")
}
