package retryqueue

import (
	"context"
	"log"
	"time"

	"github.com/VenkatGGG/taxa-totals/internal/metrics"
	"github.com/VenkatGGG/taxa-totals/internal/taxon"
)

type Resolver interface {
	Resolve(ctx context.Context, ids []taxon.ID) map[taxon.ID]int64
}

type Config struct {
	Interval  time.Duration
	BatchSize int
	// MaxAttempts drops an id after that many unresolved passes. Zero retries forever.
	MaxAttempts int
}

type Runner struct {
	queue    *Queue
	resolver Resolver
	cfg      Config
	metrics  *metrics.Metrics
	logger   *log.Logger
}

func NewRunner(queue *Queue, resolver Resolver, cfg Config, m *metrics.Metrics, logger *log.Logger) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > taxon.MaxBatch {
		cfg.BatchSize = taxon.MaxBatch
	}
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		queue:    queue,
		resolver: resolver,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// Run drains one batch per interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Printf("retry loop started: interval=%s batch=%d max_attempts=%d", r.cfg.Interval, r.cfg.BatchSize, r.cfg.MaxAttempts)
	for {
		select {
		case <-ctx.Done():
			r.logger.Printf("retry loop stopping: queued=%d", r.queue.Len())
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce processes a single batch and reports how many ids were resolved.
func (r *Runner) RunOnce(ctx context.Context) int {
	defer func() { r.metrics.QueueDepth(r.queue.Len()) }()

	batch := r.queue.DrainBatch(r.cfg.BatchSize)
	if len(batch) == 0 {
		return 0
	}

	ids := make([]taxon.ID, 0, len(batch))
	for _, p := range batch {
		ids = append(ids, p.ID)
	}
	totals := r.resolve(ctx, ids)

	resolved, requeued, dropped := 0, 0, 0
	for _, p := range batch {
		total, ok := totals[p.ID]
		if ok {
			resolved++
			// Complete also picks up consumers that queued the id again while this batch was
			// in flight.
			r.deliver(p.ID, r.queue.Complete(p.ID), total)
			continue
		}

		p.Attempts++
		if r.cfg.MaxAttempts > 0 && p.Attempts >= r.cfg.MaxAttempts {
			dropped++
			waiters := r.queue.Drop(p)
			r.logger.Printf("retry giving up: id=%s attempts=%d waiters=%d", p.ID, p.Attempts, waiters)
			continue
		}
		requeued++
		r.queue.Requeue(p)
	}

	r.metrics.Resolved(resolved)
	r.metrics.Requeued(requeued)
	r.metrics.Dropped(dropped)
	if requeued > 0 {
		r.logger.Printf("retry batch: ids=%d resolved=%d requeued=%d", len(batch), resolved, requeued)
	}
	return resolved
}

func (r *Runner) resolve(ctx context.Context, ids []taxon.ID) (totals map[taxon.ID]int64) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Printf("retry batch resolver panic (requeueing %d ids): %v", len(ids), rec)
			totals = nil
		}
	}()
	return r.resolver.Resolve(ctx, ids)
}

func (r *Runner) deliver(id taxon.ID, consumers []taxon.Consumer, total int64) {
	for _, consumer := range consumers {
		Notify(r.logger, consumer, id, total)
	}
	r.metrics.Delivered(len(consumers))
}

// Notify calls consumer, containing a panic so one bad consumer cannot stop the loop.
func Notify(logger *log.Logger, consumer taxon.Consumer, id taxon.ID, total int64) {
	if consumer == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil && logger != nil {
			logger.Printf("consumer panic: id=%s err=%v", id, rec)
		}
	}()
	consumer(id, total)
}
