package ttlstore

import (
	"context"
	"time"
)

// Backend persists raw records. Expiry decisions belong to Store; a backend may also expire
// keys on its own after ttl.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, raw []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
