package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "actors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadActorStore(t *testing.T) {
	path := writeSeed(t, `
actors:
  - id: "1"
    name: "Ada"
    username: "ada"
    email: "ada@example.com"
    created_at: 2024-01-02T15:04:05Z
    sso_external_id: "okta-1"
    ip_address: "192.0.2.1"
  - id: "2"
    email: "bob@example.com"
`)
	s, err := LoadActorStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := s.FindActor(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "Ada", a.Name)
	require.Equal(t, "ada", a.Username)
	require.Equal(t, time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC), a.CreatedAt.UTC())
	require.Equal(t, "okta-1", a.SSOExternalID)
	require.Equal(t, "192.0.2.1", a.IPAddress)

	ids, err := s.ListActorIDsAfter(ctx, 0, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, ids)
}

func TestLoadActorStore_EmptyPath(t *testing.T) {
	s, err := LoadActorStore("")
	require.NoError(t, err)

	ids, err := s.ListActorIDsAfter(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestLoadActorStore_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{
			name:    "missing file",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "absent.yaml") },
			wantErr: "read actors file",
		},
		{
			name:    "malformed yaml",
			path:    func(t *testing.T) string { return writeSeed(t, "actors: [") },
			wantErr: "parse actors file",
		},
		{
			name:    "non numeric id",
			path:    func(t *testing.T) string { return writeSeed(t, "actors:\n  - id: \"abc\"\n") },
			wantErr: "must be a positive integer",
		},
		{
			name:    "duplicate id",
			path:    func(t *testing.T) string { return writeSeed(t, "actors:\n  - id: \"3\"\n  - id: \"3\"\n") },
			wantErr: "duplicate actor id",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadActorStore(tc.path(t))
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}
