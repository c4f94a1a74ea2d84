package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aevon-lab/segment-relay/internal/guest"
)

// SessionAdapter implements guest.Store on the guest_sessions table.
// Run migrations/001_create_guest_sessions.up.sql before use.
type SessionAdapter struct {
	stmtLoad *sql.Stmt
	stmtSave *sql.Stmt
}

var _ guest.Store = (*SessionAdapter)(nil)

// NewSessionAdapter prepares the session statements on db.
func NewSessionAdapter(db *sql.DB) (*SessionAdapter, error) {
	if err := validateSchema(db, "guest_sessions"); err != nil {
		return nil, fmt.Errorf("schema validation failed - did you run migrations?: %w", err)
	}

	stmtLoad, err := db.Prepare(queryLoadSessionValue)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare loadSessionValue statement: %w", err)
	}

	stmtSave, err := db.Prepare(querySaveSessionValue)
	if err != nil {
		stmtLoad.Close()
		return nil, fmt.Errorf("failed to prepare saveSessionValue statement: %w", err)
	}

	slog.Info("[Postgres] Session adapter initialized with prepared statements")

	return &SessionAdapter{stmtLoad: stmtLoad, stmtSave: stmtSave}, nil
}

func (a *SessionAdapter) Load(ctx context.Context, sessionID, key string) (string, bool, error) {
	var value string
	err := a.stmtLoad.QueryRowContext(ctx, sessionID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load session value: %w", err)
	}
	return value, true, nil
}

func (a *SessionAdapter) Save(ctx context.Context, sessionID, key, value string) error {
	if _, err := a.stmtSave.ExecContext(ctx, sessionID, key, value); err != nil {
		return fmt.Errorf("failed to save session value: %w", err)
	}

	slog.Debug("[Postgres] Saved session value", "session_id", sessionID, "key", key)
	return nil
}

// Close releases the prepared statements.
func (a *SessionAdapter) Close() error {
	var firstErr error

	if err := a.stmtLoad.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close loadSessionValue statement: %w", err)
	}
	if err := a.stmtSave.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close saveSessionValue statement: %w", err)
	}

	return firstErr
}
