package cache

import (
	"context"
	"time"
)

// Cache is a keyed store of values of one type with per-entry TTL.
// Implementations must be safe for concurrent use.
type Cache[V any] interface {
	// Get returns the value and true if present and not expired.
	Get(ctx context.Context, key string) (V, bool)

	// Set stores a value; a non-positive ttl uses the cache default.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// Delete removes a value. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Len returns the number of stored entries, including expired ones not yet reclaimed.
	Len() int

	// Close releases resources held by the cache.
	Close() error

	// Metrics returns a snapshot of cache statistics.
	Metrics() *Metrics
}

// Metrics holds cache performance statistics.
type Metrics struct {
	Hits          uint64
	Misses        uint64
	KeysAdded     uint64
	KeysEvicted   uint64 // dropped to stay under the size budget
	KeysExpired   uint64
	Invalidations uint64 // explicit Delete calls that removed an entry
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (m *Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0.0
	}
	return float64(m.Hits) / float64(total)
}
