// Package throttle is the single gate every outbound batch call passes through.
package throttle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/VenkatGGG/taxa-totals/internal/lease"
)

const DefaultInterval = time.Second

type Config struct {
	// Interval is the minimum spacing between two reserved turns.
	Interval time.Duration
	// Resource names the shared lease when a gate is configured.
	Resource string
}

type Throttle struct {
	interval time.Duration
	limiter  *rate.Limiter
	gate     lease.Manager
	resource string
	owner    string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu          sync.Mutex
	lastCallAt  time.Time
	pausedUntil time.Time
}

// New builds a throttle. gate may be nil; when set, every turn must also win the shared lease
// for one interval.
func New(cfg Config, gate lease.Manager) *Throttle {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	resource := strings.TrimSpace(cfg.Resource)
	if resource == "" {
		resource = "remote"
	}
	return &Throttle{
		interval: cfg.Interval,
		limiter:  rate.NewLimiter(rate.Every(cfg.Interval), 1),
		gate:     gate,
		resource: "throttle:" + resource,
		owner:    "throttle-" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// WithClock swaps the time source and the wait primitive.
func (t *Throttle) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Throttle {
	if now != nil {
		t.now = now
	}
	if sleep != nil {
		t.sleep = sleep
	}
	return t
}

// AwaitTurn blocks until the caller may issue the next outbound call and returns the reserved
// instant. Reservations are at least Interval apart and never earlier than a pause deadline.
func (t *Throttle) AwaitTurn(ctx context.Context) (time.Time, error) {
	for {
		slot, err := t.reserve(ctx)
		if err != nil {
			return time.Time{}, err
		}
		if t.gate == nil {
			return slot, nil
		}
		_, ok, err := t.gate.Acquire(ctx, t.resource, t.owner, t.interval)
		if err != nil {
			return time.Time{}, fmt.Errorf("throttle shared gate: %w", err)
		}
		if ok {
			return slot, nil
		}
		// Another process holds this slot. Reserve the next local one and try again.
	}
}

// reserve books the next limiter slot at or after the pause deadline and sleeps until it.
// Reservation times never go backwards, so the limiter alone keeps slots Interval apart. A
// cancelled wait hands its slot back.
func (t *Throttle) reserve(ctx context.Context) (time.Time, error) {
	t.mu.Lock()
	now := t.now()
	at := now
	if t.pausedUntil.After(at) {
		at = t.pausedUntil
	}
	r := t.limiter.ReserveN(at, 1)
	slot := at.Add(r.DelayFrom(at))
	t.mu.Unlock()

	if wait := slot.Sub(now); wait > 0 {
		if err := t.sleep(ctx, wait); err != nil {
			t.mu.Lock()
			cancelAt := t.now()
			if cancelAt.Before(at) {
				cancelAt = at
			}
			r.CancelAt(cancelAt)
			t.mu.Unlock()
			return time.Time{}, err
		}
	}

	t.mu.Lock()
	if slot.After(t.lastCallAt) {
		t.lastCallAt = slot
	}
	t.mu.Unlock()
	return slot, nil
}

// PauseFor holds every future turn back until now+d. Overlapping pauses keep the later deadline.
func (t *Throttle) PauseFor(d time.Duration) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	until := t.now().Add(d)
	if until.After(t.pausedUntil) {
		t.pausedUntil = until
	}
	return t.pausedUntil
}

func (t *Throttle) PausedUntil() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pausedUntil
}

// LastCallAt is the latest slot handed out.
func (t *Throttle) LastCallAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastCallAt
}

func (t *Throttle) Interval() time.Duration {
	return t.interval
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
