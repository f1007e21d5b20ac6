// Package queue is an in-process task dispatcher with three priority
// lanes. Each lane runs its jobs on its own bounded worker group; a nil
// Pool degrades every Enqueue to a synchronous call, which is what the
// CLI uses when concurrent processing is disabled.
package queue

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Priority lane names.
const (
	HighPriority = "high_priority"
	Default      = "default"
	LowPriority  = "low_priority"
)

// Job is one unit of queued work. Errors are logged, not propagated:
// a failed job never stops the batch.
type Job func(ctx context.Context) error

type lane struct {
	jobs chan Job
}

// Pool runs jobs from the three lanes until Close drains them.
type Pool struct {
	ctx    context.Context
	group  *errgroup.Group
	lanes  map[string]*lane
	logger *slog.Logger
}

// New starts a pool with the given workers per lane.
func New(ctx context.Context, workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	group, ctx := errgroup.WithContext(ctx)
	p := &Pool{
		ctx:    ctx,
		group:  group,
		lanes:  make(map[string]*lane),
		logger: logger,
	}
	for _, name := range []string{HighPriority, Default, LowPriority} {
		l := &lane{jobs: make(chan Job, 1024)}
		p.lanes[name] = l
		for i := 0; i < workers; i++ {
			group.Go(func() error {
				for job := range l.jobs {
					if err := p.ctx.Err(); err != nil {
						continue
					}
					if err := job(p.ctx); err != nil {
						p.logger.Error("queued job failed", "error", err)
					}
				}
				return nil
			})
		}
	}
	return p
}

// Enqueue schedules a job on the named lane. Unknown lanes fall back to
// the default lane. A nil pool runs the job inline.
func (p *Pool) Enqueue(ctx context.Context, priority string, job Job) {
	if p == nil {
		if err := job(ctx); err != nil {
			slog.Error("job failed", "error", err)
		}
		return
	}
	l, ok := p.lanes[priority]
	if !ok {
		l = p.lanes[Default]
	}
	select {
	case l.jobs <- job:
	case <-p.ctx.Done():
	}
}

// Close stops accepting work and waits for every queued job to finish.
func (p *Pool) Close() error {
	if p == nil {
		return nil
	}
	for _, l := range p.lanes {
		close(l.jobs)
	}
	return p.group.Wait()
}
