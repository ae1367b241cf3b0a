package main

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/VenkatGGG/taxa-totals/internal/config"
	"github.com/VenkatGGG/taxa-totals/internal/engine"
	"github.com/VenkatGGG/taxa-totals/internal/lease"
	"github.com/VenkatGGG/taxa-totals/internal/metrics"
	"github.com/VenkatGGG/taxa-totals/internal/remote"
	"github.com/VenkatGGG/taxa-totals/internal/resolver"
	"github.com/VenkatGGG/taxa-totals/internal/retryqueue"
	"github.com/VenkatGGG/taxa-totals/internal/sessioncache"
	"github.com/VenkatGGG/taxa-totals/internal/throttle"
	"github.com/VenkatGGG/taxa-totals/internal/ttlstore"
)

type app struct {
	engine   *engine.Engine
	throttle *throttle.Throttle
	registry *prometheus.Registry
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp assembles the pipeline from cfg. client overrides the HTTP transport when set.
func buildApp(ctx context.Context, cfg config.Config, client remote.Client, logger *log.Logger) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(a.registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	var redisClient *redis.Client
	connectRedis := func() (*redis.Client, error) {
		if redisClient != nil {
			return redisClient, nil
		}
		c := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		redisClient = c
		return c, nil
	}

	var backend ttlstore.Backend
	switch cfg.StoreBackend {
	case config.BackendRedis:
		c, err := connectRedis()
		if err != nil {
			a.Close()
			return nil, err
		}
		backend = ttlstore.NewRedisBackend(c)
	case config.BackendPostgres:
		pg, err := ttlstore.NewPostgresBackend(ctx, cfg.PostgresDSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		purged, err := pg.Purge(ctx)
		if err != nil {
			logger.Printf("ttlstore purge failed: err=%v", err)
		} else if purged > 0 {
			logger.Printf("ttlstore purged expired rows: count=%d", purged)
		}
		backend = pg
	default:
		backend = ttlstore.NewInMemoryBackend()
	}

	var gate lease.Manager
	if cfg.SharedThrottle {
		c, err := connectRedis()
		if err != nil {
			a.Close()
			return nil, err
		}
		gate = lease.NewRedisManager(c, cfg.LeasePrefix)
	}

	if client == nil {
		client = remote.NewHTTPClient(cfg.RemoteBaseURL, cfg.RemoteTimeout)
	}

	session := sessioncache.New()
	store := ttlstore.New(backend, ttlstore.Config{Prefix: cfg.KeyPrefix, TTL: cfg.EntryTTL}, m, logger)
	a.throttle = throttle.New(throttle.Config{Interval: cfg.Interval, Resource: cfg.ThrottleResource}, gate)
	res := resolver.New(client, a.throttle, session, store, resolver.Config{
		BatchSize: cfg.BatchSize,
		Cooldown:  cfg.PauseDuration,
	}, m, logger)
	a.engine = engine.New(session, store, res, engine.Config{
		BulkSize: cfg.BatchSize,
		Retry: retryqueue.Config{
			Interval:    cfg.Interval,
			BatchSize:   cfg.BatchSize,
			MaxAttempts: cfg.MaxAttempts,
		},
	}, m, logger)

	logger.Printf(
		"pipeline ready: store=%s interval=%s batch=%d shared_throttle=%t remote=%s",
		cfg.StoreBackend, cfg.Interval, cfg.BatchSize, cfg.SharedThrottle, remoteName(client, cfg),
	)
	return a, nil
}

func remoteName(client remote.Client, cfg config.Config) string {
	if _, ok := client.(*remote.HTTPClient); ok {
		return strings.TrimSuffix(cfg.RemoteBaseURL, "/")
	}
	return fmt.Sprintf("%T", client)
}
