package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter exports metrics to Prometheus format.
// Counters the collector already aggregates are exposed through CounterFuncs;
// per-request series are recorded directly.
type PrometheusExporter struct {
	collector *Collector
	gatherer  prometheus.Gatherer

	cacheHitRate   prometheus.Gauge
	cacheKeys      prometheus.Gauge
	grpcRequests   *prometheus.CounterVec
	grpcDuration   *prometheus.HistogramVec
	grpcErrors     *prometheus.CounterVec
	attrWrites     *prometheus.CounterVec
	kindChanges    prometheus.Counter
	corruptCurrent prometheus.Gauge
	rowsCurrent    *prometheus.GaugeVec
}

// NewPrometheusExporter registers the warehouse metrics on reg, which is also
// what Handler serves. Tests pass a fresh prometheus.NewRegistry().
func NewPrometheusExporter(collector *Collector, reg *prometheus.Registry) *PrometheusExporter {
	factory := promauto.With(reg)
	cacheValue := func(pick func(*CacheMetrics) uint64) func() float64 {
		return func() float64 { return float64(pick(collector.GetCacheMetrics())) }
	}

	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "warehouse_project_cache_hits_total",
		Help: "Total number of project view cache hits",
	}, cacheValue(func(m *CacheMetrics) uint64 { return m.Hits }))
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "warehouse_project_cache_misses_total",
		Help: "Total number of project view cache misses",
	}, cacheValue(func(m *CacheMetrics) uint64 { return m.Misses }))
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "warehouse_project_cache_evictions_total",
		Help: "Total number of project views evicted due to the memory limit",
	}, cacheValue(func(m *CacheMetrics) uint64 { return m.Evictions }))
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "warehouse_project_cache_invalidations_total",
		Help: "Total number of project views dropped after a change",
	}, cacheValue(func(m *CacheMetrics) uint64 { return m.Invalidations }))

	return &PrometheusExporter{
		collector: collector,
		gatherer:  reg,
		cacheHitRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "warehouse_project_cache_hit_rate",
			Help: "Current project view cache hit rate (0.0 to 1.0)",
		}),
		cacheKeys: factory.NewGauge(prometheus.GaugeOpts{
			Name: "warehouse_project_cache_keys_current",
			Help: "Current number of cached project views",
		}),
		grpcRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_grpc_requests_total",
				Help: "Total number of gRPC requests",
			},
			[]string{"method"},
		),
		grpcDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warehouse_grpc_request_duration_seconds",
				Help:    "Duration of gRPC requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"method"},
		),
		grpcErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_grpc_errors_total",
				Help: "Total number of failed gRPC requests by status code",
			},
			[]string{"method", "code"},
		),
		attrWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "warehouse_attribute_writes_total",
				Help: "Total number of attribute writes by value type",
			},
			[]string{"value_type"},
		),
		kindChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "warehouse_attribute_kind_changes_total",
			Help: "Total number of accepted attribute kind changes",
		}),
		corruptCurrent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "warehouse_attribute_corrupt_current",
			Help: "Attribute rows whose stored text failed to parse in the latest audit",
		}),
		rowsCurrent: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "warehouse_rows_current",
				Help: "Current row count per table",
			},
			[]string{"table"},
		),
	}
}

// Update updates Gauge metrics from the collector.
// Counters are updated via interceptor and services, so only update gauges here.
// This should be called periodically (e.g., by the metrics refresh job).
func (e *PrometheusExporter) Update() {
	cacheMetrics := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(cacheMetrics.HitRate)
	e.cacheKeys.Set(float64(cacheMetrics.KeysCurrent))

	e.corruptCurrent.Set(float64(e.collector.GetAttributeMetrics().CorruptCurrent))
	for table, n := range e.collector.GetRowCounts() {
		e.rowsCurrent.WithLabelValues(table).Set(float64(n))
	}
}

// Handler serves the registry in the Prometheus text format.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.gatherer, promhttp.HandlerOpts{})
}

// RecordRequest records a request in Prometheus.
func (e *PrometheusExporter) RecordRequest(method string) {
	e.grpcRequests.WithLabelValues(method).Inc()
}

// RecordDuration records a duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(method string, durationSeconds float64) {
	e.grpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordError records a failed request and its status code in Prometheus.
func (e *PrometheusExporter) RecordError(method, code string) {
	e.grpcErrors.WithLabelValues(method, code).Inc()
}

// RecordAttributeWrite records an attribute write in Prometheus.
func (e *PrometheusExporter) RecordAttributeWrite(valueType string) {
	e.attrWrites.WithLabelValues(valueType).Inc()
}

// RecordKindChange records an accepted kind change in Prometheus.
func (e *PrometheusExporter) RecordKindChange() {
	e.kindChanges.Inc()
}
