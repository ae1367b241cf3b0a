package lease

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisManager struct {
	client redis.Cmdable
	prefix string
}

func NewRedisManager(client redis.Cmdable, prefix string) *RedisManager {
	normalized := strings.TrimSpace(prefix)
	if normalized == "" {
		normalized = "taxatotals:lease"
	}
	return &RedisManager{
		client: client,
		prefix: normalized,
	}
}

// acquireScript takes the hold when it is free or already ours, restarting its ttl.
var acquireScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == false or current == ARGV[1] then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

// Acquire takes the hold for ttl. The token is a per-resource counter so holders can be
// ordered.
func (m *RedisManager) Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (Lease, bool, error) {
	resource, owner, ttl, err := normalize(resource, owner, ttl)
	if err != nil {
		return Lease{}, false, err
	}

	ttlMS := ttl.Milliseconds()
	if ttlMS < 1 {
		ttlMS = 1
	}
	acquired, err := acquireScript.Run(ctx, m.client, []string{m.holdKey(resource)}, owner, ttlMS).Int()
	if err != nil {
		return Lease{}, false, fmt.Errorf("lease acquire: %w", err)
	}
	if acquired != 1 {
		return Lease{}, false, nil
	}

	token, err := m.client.Incr(ctx, m.seqKey(resource)).Uint64()
	if err != nil {
		return Lease{}, false, fmt.Errorf("lease incr token: %w", err)
	}
	return Lease{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}, true, nil
}

func (m *RedisManager) holdKey(resource string) string {
	return m.prefix + ":hold:" + resource
}

func (m *RedisManager) seqKey(resource string) string {
	return m.prefix + ":seq:" + resource
}
