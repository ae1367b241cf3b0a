// Package metrics holds the Prometheus collectors shared by the resolution pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "taxa_totals"

// Lookup tiers.
const (
	TierSession = "session"
	TierStore   = "store"
	TierMiss    = "miss"
)

// Remote call outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeRateLimited = "rate_limited"
	OutcomeThrottle    = "throttle_error"
)

type Metrics struct {
	lookups        *prometheus.CounterVec
	remoteCalls    *prometheus.CounterVec
	batchSize      prometheus.Histogram
	storeEvictions *prometheus.CounterVec
	resolved       prometheus.Counter
	requeued       prometheus.Counter
	dropped        prometheus.Counter
	delivered      prometheus.Counter
	queueDepth     prometheus.Gauge
}

// New builds the collectors and registers them with reg. A nil reg leaves them unregistered,
// which is what tests want.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by the tier that answered them",
		}, []string{"tier"}),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "calls_total",
			Help:      "Outbound batch calls by outcome",
		}, []string{"outcome"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "batch_size",
			Help:      "Number of ids sent per outbound batch call",
			Buckets:   []float64{1, 2, 5, 10, 20, 30},
		}),
		storeEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "store_evictions_total",
			Help:      "Persistent entries evicted on read, by reason",
		}, []string{"reason"}),
		resolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "resolved_total",
			Help:      "Queued ids resolved by the retry loop",
		}),
		requeued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "requeued_total",
			Help:      "Queued ids sent back to the queue after a pass without a value",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "dropped_total",
			Help:      "Queued ids abandoned after exhausting max attempts",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "deliveries_total",
			Help:      "Consumer callbacks invoked",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "queue_depth",
			Help:      "Ids currently waiting in the retry queue",
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.lookups, m.remoteCalls, m.batchSize, m.storeEvictions,
		m.resolved, m.requeued, m.dropped, m.delivered, m.queueDepth,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Lookup(tier string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(tier).Inc()
}

func (m *Metrics) RemoteCall(outcome string, size int) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(outcome).Inc()
	m.batchSize.Observe(float64(size))
}

func (m *Metrics) StoreEviction(reason string) {
	if m == nil {
		return
	}
	m.storeEvictions.WithLabelValues(reason).Inc()
}

func (m *Metrics) Resolved(n int) {
	if m == nil {
		return
	}
	m.resolved.Add(float64(n))
}

func (m *Metrics) Requeued(n int) {
	if m == nil {
		return
	}
	m.requeued.Add(float64(n))
}

func (m *Metrics) Dropped(n int) {
	if m == nil {
		return
	}
	m.dropped.Add(float64(n))
}

func (m *Metrics) Delivered(n int) {
	if m == nil {
		return
	}
	m.delivered.Add(float64(n))
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}
