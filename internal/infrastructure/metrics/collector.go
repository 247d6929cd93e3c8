package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/asakaida/warehouse/pkg/cache"
)

// CacheSource is the part of a cache the collector reads
type CacheSource interface {
	Len() int
	Metrics() *cache.Metrics
}

// Collector collects and aggregates metrics for the application.
type Collector struct {
	// API metrics
	apiRequests sync.Map // map[string]*uint64 - method -> count
	apiErrors   sync.Map // map[string]*uint64 - method -> error count
	apiDuration sync.Map // map[string]*durationValue - method -> total duration in seconds

	// Attribute store metrics
	attributeWrites sync.Map // map[string]*uint64 - value_type -> count
	kindChanges     uint64
	corruptCurrent  int64

	rowCounts sync.Map // map[string]int64 - table -> rows

	// Cache reference (optional, for querying cache-specific metrics)
	mu    sync.RWMutex
	cache CacheSource
}

// durationValue holds duration with mutex for thread-safe updates.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds cache performance metrics.
type CacheMetrics struct {
	Hits          uint64
	Misses        uint64
	HitRate       float64
	KeysCurrent   int64
	Evictions     uint64
	Invalidations uint64
}

// APIMetrics holds API request metrics.
type APIMetrics struct {
	RequestCounts        map[string]uint64
	ErrorCounts          map[string]uint64
	TotalDurationSeconds map[string]float64
}

// AttributeMetrics holds attribute store metrics.
type AttributeMetrics struct {
	WritesByKind   map[string]uint64
	KindChanges    uint64
	CorruptCurrent int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetCache sets the cache instance for collecting cache metrics.
func (c *Collector) SetCache(source CacheSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = source
}

// RecordRequest records an API request.
func (c *Collector) RecordRequest(method string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.apiRequests, method), 1)
}

// RecordError records an API error.
func (c *Collector) RecordError(method string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.apiErrors, method), 1)
}

// RecordDuration records the duration of an API call in seconds.
func (c *Collector) RecordDuration(method string, durationSeconds float64) {
	val, _ := c.apiDuration.LoadOrStore(method, &durationValue{})
	dv := val.(*durationValue)

	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()
}

// RecordAttributeWrite counts a successful attribute write of the given kind.
func (c *Collector) RecordAttributeWrite(valueType string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.attributeWrites, valueType), 1)
}

// RecordKindChange counts an accepted change of an attribute's kind.
func (c *Collector) RecordKindChange() {
	atomic.AddUint64(&c.kindChanges, 1)
}

// SetCorruptAttributes records the result of the latest audit.
func (c *Collector) SetCorruptAttributes(n int64) {
	atomic.StoreInt64(&c.corruptCurrent, n)
}

// SetRowCount records the current row count of a table.
func (c *Collector) SetRowCount(table string, n int64) {
	c.rowCounts.Store(table, n)
}

// GetCacheMetrics returns current cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	c.mu.RLock()
	source := c.cache
	c.mu.RUnlock()

	if source == nil {
		return &CacheMetrics{}
	}

	metrics := source.Metrics()
	if metrics == nil {
		return &CacheMetrics{}
	}

	return &CacheMetrics{
		Hits:          metrics.Hits,
		Misses:        metrics.Misses,
		HitRate:       metrics.HitRate(),
		KeysCurrent:   int64(source.Len()),
		Evictions:     metrics.KeysEvicted,
		Invalidations: metrics.Invalidations,
	}
}

// GetAPIMetrics returns current API metrics.
func (c *Collector) GetAPIMetrics() *APIMetrics {
	result := &APIMetrics{
		RequestCounts:        loadCounters(&c.apiRequests),
		ErrorCounts:          loadCounters(&c.apiErrors),
		TotalDurationSeconds: make(map[string]float64),
	}

	c.apiDuration.Range(func(key, value interface{}) bool {
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[key.(string)] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	return result
}

// GetAttributeMetrics returns current attribute store metrics.
func (c *Collector) GetAttributeMetrics() *AttributeMetrics {
	return &AttributeMetrics{
		WritesByKind:   loadCounters(&c.attributeWrites),
		KindChanges:    atomic.LoadUint64(&c.kindChanges),
		CorruptCurrent: atomic.LoadInt64(&c.corruptCurrent),
	}
}

// GetRowCounts returns the last recorded row count per table.
func (c *Collector) GetRowCounts() map[string]int64 {
	out := make(map[string]int64)
	c.rowCounts.Range(func(key, value interface{}) bool {
		out[key.(string)] = value.(int64)
		return true
	})
	return out
}

// getOrCreateCounter gets or creates a counter for the given key.
func (c *Collector) getOrCreateCounter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}

func loadCounters(m *sync.Map) map[string]uint64 {
	out := make(map[string]uint64)
	m.Range(func(key, value interface{}) bool {
		out[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	return out
}
