package domain

import (
	"context"
	"time"
)

// Cache is the short-lived resource-list cache. The provisioner stores
// the last-fetched remote name lists under project-scoped keys and
// invalidates them explicitly after every mutation, so a forgotten
// refresh can never serve stale names past the TTL.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, project string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, project string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, project string, key string) error

	// GetNames retrieves a cached resource name list.
	GetNames(ctx context.Context, project string, kind ResourceKind) ([]string, error)

	// SetNames caches a resource name list.
	SetNames(ctx context.Context, project string, kind ResourceKind, names []string, ttl time.Duration) error

	// DeleteNames invalidates a cached resource name list. Called
	// after every mutation of that kind.
	DeleteNames(ctx context.Context, project string, kind ResourceKind) error

	// IncrementCounter atomically increments a counter and returns the
	// new value. Used for prediction-rate accounting.
	IncrementCounter(ctx context.Context, project string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
