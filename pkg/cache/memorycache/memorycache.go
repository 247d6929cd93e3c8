package memorycache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asakaida/warehouse/pkg/cache"
)

// defaultEntrySize is charged per entry when Config.SizeOf is nil
const defaultEntrySize = 100

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	size      int64 // approximate bytes
}

// Cache is a size-bounded LRU with per-entry TTL.
type Cache[V any] struct {
	mu sync.Mutex

	items     map[string]*list.Element
	evictList *list.List // front = most recently used

	maxSize     int64
	ttl         time.Duration
	sizeOf      func(key string, value V) int64
	now         func() time.Time
	currentSize int64

	metrics *counters
}

type counters struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	keysAdded     atomic.Uint64
	keysEvicted   atomic.Uint64
	keysExpired   atomic.Uint64
	invalidations atomic.Uint64
}

// Config holds configuration for the memory cache.
type Config[V any] struct {
	// MaxSizeBytes is the budget for the summed entry sizes.
	// Least recently used entries are evicted beyond it.
	MaxSizeBytes int64

	// DefaultTTL applies when Set is called with a non-positive ttl.
	DefaultTTL time.Duration

	// EnableMetrics enables collection of cache metrics.
	EnableMetrics bool

	// SizeOf estimates the memory held by an entry. Nil charges a flat amount plus the key length.
	SizeOf func(key string, value V) int64
}

// New creates a new memory cache with the given configuration.
func New[V any](config *Config[V]) (*Cache[V], error) {
	c := &Cache[V]{
		items:     make(map[string]*list.Element),
		evictList: list.New(),
		maxSize:   config.MaxSizeBytes,
		ttl:       config.DefaultTTL,
		sizeOf:    config.SizeOf,
		now:       time.Now,
	}
	if c.sizeOf == nil {
		c.sizeOf = func(key string, _ V) int64 { return int64(defaultEntrySize + len(key)) }
	}

	if config.EnableMetrics {
		c.metrics = &counters{}
	}

	return c, nil
}

// Get retrieves a value and marks it as recently used.
func (c *Cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		c.count(func(m *counters) { m.misses.Add(1) })
		return zero, false
	}

	ent := elem.Value.(*entry[V])
	if c.now().After(ent.expiresAt) {
		c.removeElement(elem)
		c.count(func(m *counters) {
			m.misses.Add(1)
			m.keysExpired.Add(1)
		})
		return zero, false
	}

	c.evictList.MoveToFront(elem)
	c.count(func(m *counters) { m.hits.Add(1) })
	return ent.value, true
}

// Set stores a value in cache with the specified TTL.
func (c *Cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	size := c.sizeOf(key, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if elem, exists := c.items[key]; exists {
		ent := elem.Value.(*entry[V])
		c.currentSize += size - ent.size
		ent.value = value
		ent.expiresAt = expiresAt
		ent.size = size
		c.evictList.MoveToFront(elem)
	} else {
		ent := &entry[V]{key: key, value: value, expiresAt: expiresAt, size: size}
		c.items[key] = c.evictList.PushFront(ent)
		c.currentSize += size
		c.count(func(m *counters) { m.keysAdded.Add(1) })
	}

	// The entry just written is never evicted by its own insertion
	for c.currentSize > c.maxSize && c.evictList.Len() > 1 {
		c.removeElement(c.evictList.Back())
		c.count(func(m *counters) { m.keysEvicted.Add(1) })
	}

	return nil
}

// Delete removes a value from cache.
func (c *Cache[V]) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
		c.count(func(m *counters) { m.invalidations.Add(1) })
	}

	return nil
}

// Clear removes all entries from cache.
func (c *Cache[V]) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.evictList.Init()
	c.currentSize = 0

	return nil
}

// Close releases resources (no-op for memory cache).
func (c *Cache[V]) Close() error {
	return nil
}

// Metrics returns cache statistics.
func (c *Cache[V]) Metrics() *cache.Metrics {
	if c.metrics == nil {
		return &cache.Metrics{}
	}

	return &cache.Metrics{
		Hits:          c.metrics.hits.Load(),
		Misses:        c.metrics.misses.Load(),
		KeysAdded:     c.metrics.keysAdded.Load(),
		KeysEvicted:   c.metrics.keysEvicted.Load(),
		KeysExpired:   c.metrics.keysExpired.Load(),
		Invalidations: c.metrics.invalidations.Load(),
	}
}

// Len returns the current number of items in cache.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Size returns the current total size in bytes.
func (c *Cache[V]) Size() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

func (c *Cache[V]) count(fn func(*counters)) {
	if c.metrics != nil {
		fn(c.metrics)
	}
}

// removeElement must be called with the lock held.
func (c *Cache[V]) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	ent := elem.Value.(*entry[V])
	delete(c.items, ent.key)
	c.currentSize -= ent.size
}

var _ cache.Cache[struct{}] = (*Cache[struct{}])(nil)
