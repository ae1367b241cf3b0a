// Package engine routes taxon ids through the session cache, the persistent store and the
// retry queue, and hands resolved totals back to whoever asked for them.
package engine

import (
	"context"
	"log"

	"github.com/VenkatGGG/taxa-totals/internal/metrics"
	"github.com/VenkatGGG/taxa-totals/internal/retryqueue"
	"github.com/VenkatGGG/taxa-totals/internal/sessioncache"
	"github.com/VenkatGGG/taxa-totals/internal/taxon"
	"github.com/VenkatGGG/taxa-totals/internal/ttlstore"
)

type Config struct {
	// BulkSize is how many misses Discover resolves immediately. Capped at taxon.MaxBatch.
	BulkSize int
	Retry    retryqueue.Config
}

// Registration names one consumer parked on the retry queue. Cancel withdraws it.
type Registration struct {
	ID     taxon.ID
	Handle retryqueue.Handle
}

type DiscoverResult struct {
	Hits     int
	Resolved int
	Queued   int
	// Waiting lists the registrations made for queued ids.
	Waiting []Registration
}

type Engine struct {
	session  *sessioncache.Cache
	store    *ttlstore.Store
	resolver retryqueue.Resolver
	queue    *retryqueue.Queue
	runner   *retryqueue.Runner
	cfg      Config
	metrics  *metrics.Metrics
	logger   *log.Logger
}

func New(session *sessioncache.Cache, store *ttlstore.Store, resolver retryqueue.Resolver, cfg Config, m *metrics.Metrics, logger *log.Logger) *Engine {
	if cfg.BulkSize <= 0 || cfg.BulkSize > taxon.MaxBatch {
		cfg.BulkSize = taxon.MaxBatch
	}
	if logger == nil {
		logger = log.Default()
	}
	queue := retryqueue.NewQueue()
	return &Engine{
		session:  session,
		store:    store,
		resolver: resolver,
		queue:    queue,
		runner:   retryqueue.NewRunner(queue, resolver, cfg.Retry, m, logger),
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// Request delivers the total for id to consumer. A cache hit at either tier calls consumer
// before Request returns; a miss parks the id on the retry queue.
func (e *Engine) Request(ctx context.Context, id taxon.ID, consumer taxon.Consumer) error {
	_, err := e.request(ctx, id, consumer)
	return err
}

func (e *Engine) request(ctx context.Context, id taxon.ID, consumer taxon.Consumer) (retryqueue.Handle, error) {
	if !id.Valid() {
		return 0, taxon.ErrInvalidID
	}
	if total, ok := e.cached(ctx, id); ok {
		e.notify(consumer, id, total)
		return 0, nil
	}
	h, _ := e.enqueue(id, consumer)
	return h, nil
}

// enqueue parks consumer on id. The retry loop may have resolved id between the caller's cache
// miss and this call; its value is then already in the session tier and the entry is settled
// here instead of waiting for another remote call.
func (e *Engine) enqueue(id taxon.ID, consumer taxon.Consumer) (retryqueue.Handle, bool) {
	h, _ := e.queue.Enqueue(id, consumer)
	if total, ok := e.session.Get(id); ok {
		e.settle(id, total)
		return 0, false
	}
	e.metrics.QueueDepth(e.queue.Len())
	return h, true
}

func (e *Engine) settle(id taxon.ID, total int64) {
	for _, c := range e.queue.Complete(id) {
		e.notify(c, id, total)
	}
}

// Discover is the bulk entry point for a set of ids that appeared together. Hits are delivered
// at once, the first BulkSize misses get one immediate throttled resolve, and everything left
// over goes to the retry queue.
func (e *Engine) Discover(ctx context.Context, ids []taxon.ID, consumer taxon.Consumer) DiscoverResult {
	var result DiscoverResult
	misses := make([]taxon.ID, 0)
	for _, id := range taxon.Unique(ids) {
		if total, ok := e.cached(ctx, id); ok {
			e.notify(consumer, id, total)
			result.Hits++
			continue
		}
		misses = append(misses, id)
	}

	immediate := misses
	if len(immediate) > e.cfg.BulkSize {
		immediate = immediate[:e.cfg.BulkSize]
	}
	deferred := append([]taxon.ID(nil), misses[len(immediate):]...)

	if len(immediate) > 0 {
		totals := e.resolver.Resolve(ctx, immediate)
		for _, id := range immediate {
			total, ok := totals[id]
			if !ok {
				deferred = append(deferred, id)
				continue
			}
			result.Resolved++
			e.notify(consumer, id, total)
			e.settle(id, total)
		}
	}

	for _, id := range deferred {
		h, queued := e.enqueue(id, consumer)
		if !queued {
			result.Resolved++
			continue
		}
		result.Queued++
		if h != 0 {
			result.Waiting = append(result.Waiting, Registration{ID: id, Handle: h})
		}
	}

	if len(misses) > 0 {
		e.logger.Printf("discover: ids=%d hits=%d resolved=%d queued=%d", len(ids), result.Hits, result.Resolved, result.Queued)
	}
	return result
}

// Await blocks until id resolves or ctx is done. A cancelled Await withdraws its consumer;
// the id itself stays queued.
func (e *Engine) Await(ctx context.Context, id taxon.ID) (int64, error) {
	done := make(chan int64, 1)
	h, err := e.request(ctx, id, func(_ taxon.ID, total int64) {
		select {
		case done <- total:
		default:
		}
	})
	if err != nil {
		return 0, err
	}
	select {
	case total := <-done:
		return total, nil
	case <-ctx.Done():
		e.queue.Forget(id, h)
		select {
		case total := <-done:
			return total, nil
		default:
		}
		return 0, ctx.Err()
	}
}

// Cancel withdraws consumers registered by Discover. Their ids stay queued. It reports how many
// registrations were still outstanding.
func (e *Engine) Cancel(regs ...Registration) int {
	n := 0
	for _, reg := range regs {
		if e.queue.Forget(reg.ID, reg.Handle) {
			n++
		}
	}
	return n
}

// Lookup answers from the cache tiers only.
func (e *Engine) Lookup(ctx context.Context, id taxon.ID) (int64, bool) {
	if !id.Valid() {
		return 0, false
	}
	return e.cached(ctx, id)
}

// Run drives the retry loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.runner.Run(ctx)
}

// RetryOnce runs a single retry pass and reports how many ids it resolved.
func (e *Engine) RetryOnce(ctx context.Context) int {
	return e.runner.RunOnce(ctx)
}

func (e *Engine) QueueDepth() int {
	return e.queue.Len()
}

func (e *Engine) Pending(id taxon.ID) bool {
	return e.queue.Contains(id)
}

// Waiters counts consumers still registered for id.
func (e *Engine) Waiters(id taxon.ID) int {
	return e.queue.Waiters(id)
}

func (e *Engine) cached(ctx context.Context, id taxon.ID) (int64, bool) {
	if total, ok := e.session.Get(id); ok {
		e.metrics.Lookup(metrics.TierSession)
		return total, true
	}
	if total, ok := e.store.Get(ctx, id); ok {
		e.metrics.Lookup(metrics.TierStore)
		e.session.Set(id, total)
		return total, true
	}
	e.metrics.Lookup(metrics.TierMiss)
	return 0, false
}

func (e *Engine) notify(consumer taxon.Consumer, id taxon.ID, total int64) {
	if consumer == nil {
		return
	}
	retryqueue.Notify(e.logger, consumer, id, total)
	e.metrics.Delivered(1)
}
