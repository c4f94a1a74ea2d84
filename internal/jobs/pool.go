package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aevon-lab/segment-relay/internal/core/partition"
)

const (
	defaultWorkerCount = 4
	defaultQueueSize   = 1024
)

// PoolConfig sizes a Pool.
type PoolConfig struct {
	WorkerCount int
	QueueSize   int // per worker

	// Registerer receives the pool metrics when set.
	Registerer prometheus.Registerer
}

func (c PoolConfig) normalized() PoolConfig {
	n := c
	if n.WorkerCount <= 0 {
		n.WorkerCount = defaultWorkerCount
	}
	if n.QueueSize <= 0 {
		n.QueueSize = defaultQueueSize
	}
	return n
}

// Pool is the in-process Enqueuer. Each worker owns a buffered queue; jobs are sharded by actor id.
type Pool struct {
	cfg      PoolConfig
	handlers map[string]Handler
	queues   []chan Job

	mu      sync.RWMutex // guards stopped against concurrent Enqueue
	stopped bool
	started bool
	wg      sync.WaitGroup

	processed *prometheus.CounterVec
}

var _ Enqueuer = (*Pool)(nil)

// NewPool creates a stopped pool with one handler per job name.
func NewPool(cfg PoolConfig, handlers map[string]Handler) *Pool {
	cfg = cfg.normalized()

	p := &Pool{
		cfg:      cfg,
		handlers: handlers,
		queues:   make([]chan Job, cfg.WorkerCount),
	}
	for i := range p.queues {
		p.queues[i] = make(chan Job, cfg.QueueSize)
	}

	if cfg.Registerer != nil {
		p.processed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_jobs_total",
			Help: "Background jobs executed, by job name and result.",
		}, []string{"job", "result"})
		cfg.Registerer.MustRegister(p.processed)
	}
	return p
}

// Start launches the workers. Jobs run with ctx; cancelling it does not stop the workers, Stop does.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	slog.Info("[Jobs] Starting worker pool", "workers", p.cfg.WorkerCount, "queue_size", p.cfg.QueueSize)

	for i, q := range p.queues {
		p.wg.Add(1)
		go p.work(ctx, i, q)
	}
}

func (p *Pool) work(ctx context.Context, worker int, q <-chan Job) {
	defer p.wg.Done()
	for job := range q {
		p.execute(ctx, worker, job)
	}
}

func (p *Pool) execute(ctx context.Context, worker int, job Job) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[Jobs] Job panicked", "job", job.Name, "job_id", job.ID, "actor_id", job.ActorID, "panic", rec)
			p.record(job.Name, "panic")
		}
	}()

	if err := p.handlers[job.Name](ctx, job); err != nil {
		slog.Error("[Jobs] Job failed",
			"job", job.Name,
			"job_id", job.ID,
			"actor_id", job.ActorID,
			"worker", worker,
			"error", err,
		)
		p.record(job.Name, "failed")
		return
	}
	p.record(job.Name, "ok")
}

func (p *Pool) record(name, result string) {
	if p.processed != nil {
		p.processed.WithLabelValues(name, result).Inc()
	}
}

// Enqueue queues job on its actor's worker without blocking.
func (p *Pool) Enqueue(_ context.Context, job Job) error {
	if _, ok := p.handlers[job.Name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownJob, job.Name)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queues[partition.Shard(job.ActorID, len(p.queues))] <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop closes intake and waits for queued jobs to finish, or for ctx to end.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	if !started {
		return nil
	}

	slog.Info("[Jobs] Draining worker pool")

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("[Jobs] Worker pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain job pool: %w", ctx.Err())
	}
}
