package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aevon-lab/segment-relay/internal/core/storage"
)

const (
	defaultBackfillPageSize = 500
	backfillRetryDelay      = 50 * time.Millisecond
)

// Backfill enqueues an identify job for every actor, paging ids by cursor.
type Backfill struct {
	actors   storage.ActorStore
	enqueuer Enqueuer
	pageSize int
}

// NewBackfill creates a Backfill. pageSize <= 0 uses the default.
func NewBackfill(actors storage.ActorStore, enqueuer Enqueuer, pageSize int) *Backfill {
	if pageSize <= 0 {
		pageSize = defaultBackfillPageSize
	}
	return &Backfill{actors: actors, enqueuer: enqueuer, pageSize: pageSize}
}

// Run pages through all actors and returns how many jobs were enqueued.
// A full queue is retried until it drains or ctx ends.
func (b *Backfill) Run(ctx context.Context) (int, error) {
	var (
		cursor   int64
		enqueued int
		pages    int
	)

	slog.Info("[Backfill] Starting identify backfill", "page_size", b.pageSize)

	for {
		ids, err := b.actors.ListActorIDsAfter(ctx, cursor, b.pageSize)
		if err != nil {
			return enqueued, fmt.Errorf("list actors after %d: %w", cursor, err)
		}
		pages++

		for _, id := range ids {
			if err := b.enqueue(ctx, NewIdentify(strconv.FormatInt(id, 10))); err != nil {
				return enqueued, err
			}
			enqueued++
		}

		if len(ids) < b.pageSize {
			slog.Info("[Backfill] Identify backfill complete", "enqueued", enqueued, "pages", pages)
			return enqueued, nil
		}
		cursor = ids[len(ids)-1]
	}
}

func (b *Backfill) enqueue(ctx context.Context, job Job) error {
	for {
		err := b.enqueuer.Enqueue(ctx, job)
		if !errors.Is(err, ErrQueueFull) {
			if err != nil {
				return fmt.Errorf("enqueue identify for actor %s: %w", job.ActorID, err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("backfill interrupted at actor %s: %w", job.ActorID, ctx.Err())
		case <-time.After(backfillRetryDelay):
		}
	}
}
