package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aevon-lab/segment-relay/internal/core/storage"
	"github.com/aevon-lab/segment-relay/internal/identity"
)

// ActorAdapter implements storage.ActorStore and identity.SSOLookup over the host's users tables.
// It never writes to them.
type ActorAdapter struct {
	db            *sql.DB
	stmtFindActor *sql.Stmt
	stmtListIDs   *sql.Stmt
	stmtFindSSO   *sql.Stmt
}

var (
	_ storage.ActorStore = (*ActorAdapter)(nil)
	_ identity.SSOLookup = (*ActorAdapter)(nil)
)

// NewActorAdapter prepares the actor statements on db.
// The users, user_emails and single_sign_on_records tables belong to the host and must exist.
func NewActorAdapter(db *sql.DB) (*ActorAdapter, error) {
	if err := validateSchema(db, "users", "user_emails", "single_sign_on_records"); err != nil {
		return nil, fmt.Errorf("host schema validation failed: %w", err)
	}

	stmtFind, err := db.Prepare(queryFindActor)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare findActor statement: %w", err)
	}

	stmtList, err := db.Prepare(queryListActorIDsAfter)
	if err != nil {
		stmtFind.Close()
		return nil, fmt.Errorf("failed to prepare listActorIDsAfter statement: %w", err)
	}

	stmtSSO, err := db.Prepare(queryFindSSOExternalID)
	if err != nil {
		stmtFind.Close()
		stmtList.Close()
		return nil, fmt.Errorf("failed to prepare findSSOExternalID statement: %w", err)
	}

	slog.Info("[Postgres] Actor adapter initialized with prepared statements")

	return &ActorAdapter{
		db:            db,
		stmtFindActor: stmtFind,
		stmtListIDs:   stmtList,
		stmtFindSSO:   stmtSSO,
	}, nil
}

// FindActor returns storage.ErrNotFound for unknown or non-numeric ids.
func (a *ActorAdapter) FindActor(ctx context.Context, id string) (*identity.Actor, error) {
	key, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, storage.ErrNotFound
	}

	actor, err := scanActorRow(a.stmtFindActor.QueryRowContext(ctx, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find actor %d: %w", key, err)
	}
	return actor, nil
}

// ListActorIDsAfter pages actor ids in ascending order.
func (a *ActorAdapter) ListActorIDsAfter(ctx context.Context, cursor int64, limit int) ([]int64, error) {
	rows, err := a.stmtListIDs.QueryContext(ctx, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query actor ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan actor id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating actor ids: %w", err)
	}

	return ids, nil
}

// SSOExternalID looks up the actor's SSO record. A missing record is not an error.
func (a *ActorAdapter) SSOExternalID(ctx context.Context, actorID string) (string, bool, error) {
	key, err := strconv.ParseInt(actorID, 10, 64)
	if err != nil {
		return "", false, nil
	}

	var externalID sql.NullString
	err = a.stmtFindSSO.QueryRowContext(ctx, key).Scan(&externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to find sso record for actor %d: %w", key, err)
	}
	if !externalID.Valid || externalID.String == "" {
		return "", false, nil
	}
	return externalID.String, true, nil
}

// Close releases the prepared statements. The *sql.DB is owned by the caller.
func (a *ActorAdapter) Close() error {
	var firstErr error

	if err := a.stmtFindActor.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close findActor statement: %w", err)
	}
	if err := a.stmtListIDs.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close listActorIDsAfter statement: %w", err)
	}
	if err := a.stmtFindSSO.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close findSSOExternalID statement: %w", err)
	}

	return firstErr
}
