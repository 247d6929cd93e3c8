package jobs

import (
	"context"
	"time"

	"github.com/asakaida/warehouse/internal/repositories"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const refreshTimeout = 10 * time.Second

// RowCountSink receives per-table row counts
type RowCountSink interface {
	SetRowCount(table string, n int64)
}

// GaugeUpdater copies collected values into exported gauges
type GaugeUpdater interface {
	Update()
}

// MetricsRefreshJob refreshes row counts and pushes gauges to the exporter
type MetricsRefreshJob struct {
	stats    repositories.StatsRepository
	sink     RowCountSink
	exporter GaugeUpdater
	interval time.Duration
	logger   *zap.Logger
}

// NewMetricsRefreshJob creates a new MetricsRefreshJob. exporter may be nil.
func NewMetricsRefreshJob(stats repositories.StatsRepository, sink RowCountSink, exporter GaugeUpdater, interval time.Duration, logger *zap.Logger) *MetricsRefreshJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricsRefreshJob{
		stats:    stats,
		sink:     sink,
		exporter: exporter,
		interval: interval,
		logger:   logger.Named("metrics_refresh"),
	}
}

// Name returns the job name
func (j *MetricsRefreshJob) Name() string {
	return "metrics_refresh"
}

// Schedule returns the job definition
func (j *MetricsRefreshJob) Schedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute runs one refresh
func (j *MetricsRefreshJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := j.Run(ctx); err != nil {
		j.logger.Warn("metrics refresh failed", zap.Error(err))
	}
}

// Run reads the row counts and updates the gauges. Cache gauges are
// refreshed even when the row count query fails.
func (j *MetricsRefreshJob) Run(ctx context.Context) error {
	counts, err := j.stats.RowCounts(ctx)
	if err == nil {
		for table, n := range counts {
			j.sink.SetRowCount(table, n)
		}
	}
	if j.exporter != nil {
		j.exporter.Update()
	}
	return err
}
