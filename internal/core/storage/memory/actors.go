// Package memory provides in-memory storage adapters for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/aevon-lab/segment-relay/internal/core/storage"
	"github.com/aevon-lab/segment-relay/internal/identity"
)

// ActorStore is an in-memory storage.ActorStore. Actor ids must be numeric strings.
type ActorStore struct {
	mu     sync.RWMutex
	actors map[int64]identity.Actor
}

var _ storage.ActorStore = (*ActorStore)(nil)

// NewActorStore creates a store seeded with actors.
func NewActorStore(actors ...identity.Actor) (*ActorStore, error) {
	s := &ActorStore{actors: make(map[int64]identity.Actor)}
	for _, a := range actors {
		if err := s.Put(a); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Put inserts or replaces an actor.
func (s *ActorStore) Put(a identity.Actor) error {
	id, err := strconv.ParseInt(a.ID, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("actor id %q must be a positive integer", a.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.actors[id] = a
	return nil
}

func (s *ActorStore) FindActor(_ context.Context, id string) (*identity.Actor, error) {
	key, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, storage.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.actors[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copy := a
	return &copy, nil
}

func (s *ActorStore) ListActorIDsAfter(_ context.Context, cursor int64, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	s.mu.RLock()
	ids := make([]int64, 0, len(s.actors))
	for id := range s.actors {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// SSOExternalID implements identity.SSOLookup from the stored actor field.
func (s *ActorStore) SSOExternalID(ctx context.Context, actorID string) (string, bool, error) {
	a, err := s.FindActor(ctx, actorID)
	if err != nil {
		return "", false, nil
	}
	return a.SSOExternalID, a.SSOExternalID != "", nil
}
