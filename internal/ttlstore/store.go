package ttlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/VenkatGGG/taxa-totals/internal/metrics"
	"github.com/VenkatGGG/taxa-totals/internal/taxon"
)

const (
	DefaultPrefix = "inat_total_"
	DefaultTTL    = 7 * 24 * time.Hour
)

type Config struct {
	Prefix string
	TTL    time.Duration
}

// record is the persisted form. Exp is unix milliseconds.
type record struct {
	Total *int64 `json:"total"`
	Exp   int64  `json:"exp"`
}

type lookup struct {
	total int64
	ok    bool
}

// Store is the persistent, per-id expiring cache. Reads never fail: a missing, expired,
// unreadable or undecodable record is a miss.
type Store struct {
	backend Backend
	cfg     Config
	logger  *log.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	reads   singleflight.Group
}

func New(backend Backend, cfg Config, m *metrics.Metrics, logger *log.Logger) *Store {
	cfg.Prefix = strings.TrimSpace(cfg.Prefix)
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// WithClock replaces the wall clock used for expiry decisions.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) Key(id taxon.ID) string {
	return s.cfg.Prefix + id.String()
}

func (s *Store) TTL() time.Duration {
	return s.cfg.TTL
}

func (s *Store) Get(ctx context.Context, id taxon.ID) (int64, bool) {
	key := s.Key(id)
	// The read is shared by every concurrent caller for key, so one caller's cancellation
	// must not fail it for the rest.
	v, _, _ := s.reads.Do(key, func() (any, error) {
		return s.load(context.WithoutCancel(ctx), key), nil
	})
	res := v.(lookup)
	return res.total, res.ok
}

func (s *Store) load(ctx context.Context, key string) lookup {
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		s.logger.Printf("ttlstore read failed (treating as miss): key=%s err=%v", key, err)
		return lookup{}
	}
	if !ok {
		return lookup{}
	}

	rec, valid := decodeRecord(raw)
	if !valid {
		s.logger.Printf("ttlstore corrupt entry evicted: key=%s", key)
		s.evict(ctx, key, "corrupt")
		return lookup{}
	}
	if !s.now().Before(time.UnixMilli(rec.Exp)) {
		s.evict(ctx, key, "expired")
		return lookup{}
	}
	return lookup{total: *rec.Total, ok: true}
}

func (s *Store) Set(ctx context.Context, id taxon.ID, total int64) error {
	rec := record{
		Total: &total,
		Exp:   s.now().Add(s.cfg.TTL).UnixMilli(),
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode ttl record: %w", err)
	}
	return s.backend.Set(ctx, s.Key(id), raw, s.cfg.TTL)
}

func (s *Store) evict(ctx context.Context, key, reason string) {
	s.metrics.StoreEviction(reason)
	if err := s.backend.Delete(ctx, key); err != nil {
		s.logger.Printf("ttlstore evict failed: key=%s reason=%s err=%v", key, reason, err)
	}
}

func decodeRecord(raw []byte) (record, bool) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return record{}, false
	}
	if rec.Total == nil || rec.Exp <= 0 {
		return record{}, false
	}
	return rec, true
}
