// Package lease hands out short exclusive holds on a named resource. The throttle uses one
// hold per outbound call slot so that several processes sharing a backend also share one
// rate limit.
package lease

import (
	"context"
	"errors"
	"strings"
	"time"
)

const defaultTTL = time.Second

type Lease struct {
	Token     uint64
	ExpiresAt time.Time
}

type Manager interface {
	// Acquire returns ok=false without error while another owner holds an unexpired lease.
	// The current holder may acquire again; that restarts the hold for ttl.
	Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (Lease, bool, error)
}

func normalize(resource, owner string, ttl time.Duration) (string, string, time.Duration, error) {
	resource = strings.TrimSpace(resource)
	owner = strings.TrimSpace(owner)
	if resource == "" {
		return "", "", 0, errors.New("resource is required")
	}
	if owner == "" {
		return "", "", 0, errors.New("owner is required")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return resource, owner, ttl, nil
}
