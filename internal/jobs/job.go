// Package jobs runs delivery work off the request path.
//
// A Job names a handler and the actor it concerns. The in-process Pool executes jobs on a fixed
// set of workers; jobs for one actor always land on the same worker and run in enqueue order.
// Hosts with their own queue implement Enqueuer and call IdentifyJob.Run from it instead.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// NameIdentify is the job re-sending an actor's identify call.
const NameIdentify = "identify"

var (
	// ErrQueueFull is returned by Enqueue when the target worker's queue has no room.
	ErrQueueFull = errors.New("job queue is full")

	// ErrPoolStopped is returned by Enqueue after Stop.
	ErrPoolStopped = errors.New("job pool is stopped")

	// ErrUnknownJob is returned by Enqueue for a job without a registered handler.
	ErrUnknownJob = errors.New("unknown job")
)

// Job is one unit of background work.
type Job struct {
	ID         uuid.UUID
	Name       string
	ActorID    string
	EnqueuedAt time.Time
}

// NewIdentify creates an identify job for actorID.
func NewIdentify(actorID string) Job {
	return Job{
		ID:         uuid.New(),
		Name:       NameIdentify,
		ActorID:    actorID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Enqueuer accepts jobs for asynchronous execution. Enqueue must not block on execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Handler executes jobs of one name.
type Handler func(ctx context.Context, job Job) error
