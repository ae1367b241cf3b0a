package resolver

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/VenkatGGG/taxa-totals/internal/metrics"
	"github.com/VenkatGGG/taxa-totals/internal/remote"
	"github.com/VenkatGGG/taxa-totals/internal/sessioncache"
	"github.com/VenkatGGG/taxa-totals/internal/taxon"
	"github.com/VenkatGGG/taxa-totals/internal/ttlstore"
)

const DefaultCooldown = 60 * time.Second

// Gate is the part of the throttle the resolver needs.
type Gate interface {
	AwaitTurn(ctx context.Context) (time.Time, error)
	PauseFor(d time.Duration) time.Time
}

type Config struct {
	// BatchSize caps ids per remote call. Values above taxon.MaxBatch are clamped.
	BatchSize int
	// Cooldown is how long every outbound call is held back after the remote reports a
	// rate limit.
	Cooldown time.Duration
}

type Resolver struct {
	client  remote.Client
	gate    Gate
	session *sessioncache.Cache
	store   *ttlstore.Store
	cfg     Config
	metrics *metrics.Metrics
	logger  *log.Logger
}

func New(client remote.Client, gate Gate, session *sessioncache.Cache, store *ttlstore.Store, cfg Config, m *metrics.Metrics, logger *log.Logger) *Resolver {
	if cfg.BatchSize <= 0 || cfg.BatchSize > taxon.MaxBatch {
		cfg.BatchSize = taxon.MaxBatch
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		client:  client,
		gate:    gate,
		session: session,
		store:   store,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

func (r *Resolver) BatchSize() int {
	return r.cfg.BatchSize
}

// Resolve makes at most one throttled remote call for the first BatchSize distinct ids and
// returns whatever values came back. Every failure collapses to an empty map; callers treat a
// missing id as "retry later". Resolved pairs are in both cache tiers before Resolve returns.
func (r *Resolver) Resolve(ctx context.Context, ids []taxon.ID) map[taxon.ID]int64 {
	batch := taxon.Unique(ids)
	if len(batch) > r.cfg.BatchSize {
		batch = batch[:r.cfg.BatchSize]
	}
	if len(batch) == 0 {
		return map[taxon.ID]int64{}
	}

	if _, err := r.gate.AwaitTurn(ctx); err != nil {
		r.metrics.RemoteCall(metrics.OutcomeThrottle, len(batch))
		r.logger.Printf("resolver throttle wait failed: ids=%d err=%v", len(batch), err)
		return map[taxon.ID]int64{}
	}

	totals, err := r.client.FetchTotals(ctx, batch)
	if err != nil {
		if errors.Is(err, remote.ErrRateLimited) {
			until := r.gate.PauseFor(r.cfg.Cooldown)
			r.metrics.RemoteCall(metrics.OutcomeRateLimited, len(batch))
			r.logger.Printf("resolver rate limited; pausing until %s", until.UTC().Format(time.RFC3339))
			return map[taxon.ID]int64{}
		}
		r.metrics.RemoteCall(metrics.OutcomeError, len(batch))
		r.logger.Printf("resolver fetch failed: ids=%s err=%v", taxon.Join(batch), err)
		return map[taxon.ID]int64{}
	}
	r.metrics.RemoteCall(metrics.OutcomeOK, len(batch))

	resolved := make(map[taxon.ID]int64, len(totals))
	for _, id := range batch {
		total, ok := totals[id]
		if !ok {
			continue
		}
		r.session.Set(id, total)
		if err := r.store.Set(ctx, id, total); err != nil {
			r.logger.Printf("resolver persist failed: id=%s err=%v", id, err)
		}
		resolved[id] = total
	}
	return resolved
}
