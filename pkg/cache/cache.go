// Package cache provides the read-through cache layer backed by Redis.
//
// The cache is an accelerator, never an authority: any backend failure is
// reported to callers as a miss so a Redis outage degrades latency, not
// correctness.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or the backend is
// unavailable.
var ErrMiss = errors.New("cache miss")

// TTLs for the query workloads. Lists and per-device lookups churn quickly;
// dashboard counts tolerate slightly longer staleness.
const (
	ListTTL   = 15 * time.Second
	CountTTL  = 30 * time.Second
	DeviceTTL = 10 * time.Second
	LogTTL    = 30 * time.Second
)

// Store is a key/value store with per-key expiry and prefix invalidation.
type Store interface {
	// Get returns the value for key, or ErrMiss when absent. Backend errors
	// are mapped to ErrMiss.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Invalidate removes every key starting with prefix.
	Invalidate(ctx context.Context, prefix string) error
}
