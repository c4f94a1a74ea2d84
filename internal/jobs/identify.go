package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	v1 "github.com/aevon-lab/segment-relay/internal/api/v1"
	"github.com/aevon-lab/segment-relay/internal/core/storage"
	"github.com/aevon-lab/segment-relay/internal/identity"
)

// Identifier is the slice of the dispatcher the identify job needs.
type Identifier interface {
	Enabled() bool
	Identify(ctx context.Context, p *v1.Payload)
}

// IdentifyJob re-sends the identify call for one actor.
type IdentifyJob struct {
	actors     storage.ActorStore
	resolver   *identity.Resolver
	dispatcher Identifier
	now        func() time.Time
}

// NewIdentifyJob creates an IdentifyJob.
func NewIdentifyJob(actors storage.ActorStore, resolver *identity.Resolver, dispatcher Identifier) *IdentifyJob {
	return &IdentifyJob{
		actors:     actors,
		resolver:   resolver,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Run looks up actorID and sends its identify call. A closed dispatcher gate or an unknown actor
// is a successful no-op; only store failures are returned.
func (j *IdentifyJob) Run(ctx context.Context, actorID string) error {
	if !j.dispatcher.Enabled() {
		return nil
	}

	actor, err := j.actors.FindActor(ctx, actorID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.Debug("[Jobs] Actor not found, skipping identify", "actor_id", actorID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load actor %s: %w", actorID, err)
	}

	j.dispatcher.Identify(ctx, j.resolver.IdentifyPayload(ctx, actor, nil, j.now()))
	return nil
}

// Handle adapts Run to a pool Handler.
func (j *IdentifyJob) Handle(ctx context.Context, job Job) error {
	return j.Run(ctx, job.ActorID)
}
