package storage

import (
	"context"
	"errors"

	"github.com/aevon-lab/segment-relay/internal/identity"
)

// ErrNotFound is returned when the requested actor does not exist.
var ErrNotFound = errors.New("actor not found")

// ActorStore reads actor records owned by the host application.
type ActorStore interface {
	// FindActor returns the actor with the given id, or ErrNotFound.
	FindActor(ctx context.Context, id string) (*identity.Actor, error)

	// ListActorIDsAfter returns up to limit actor ids greater than cursor, in ascending order.
	// cursor=0 means "from the beginning". Used by the identify backfill.
	ListActorIDsAfter(ctx context.Context, cursor int64, limit int) ([]int64, error)
}
