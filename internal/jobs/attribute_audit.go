package jobs

import (
	"context"
	"time"

	"github.com/asakaida/warehouse/internal/repositories"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const (
	auditPageSize = 500
	auditTimeout  = 5 * time.Minute
)

// CorruptGauge receives the number of corrupt attribute rows
type CorruptGauge interface {
	SetCorruptAttributes(n int64)
}

// AttributeAuditJob decodes every stored attribute and reports the rows whose
// text no longer parses as their declared kind.
type AttributeAuditJob struct {
	repo     repositories.AttributeRepository
	gauge    CorruptGauge
	interval time.Duration
	pageSize int
	logger   *zap.Logger
}

// NewAttributeAuditJob creates a new AttributeAuditJob
func NewAttributeAuditJob(repo repositories.AttributeRepository, gauge CorruptGauge, interval time.Duration, logger *zap.Logger) *AttributeAuditJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttributeAuditJob{
		repo:     repo,
		gauge:    gauge,
		interval: interval,
		pageSize: auditPageSize,
		logger:   logger.Named("attribute_audit"),
	}
}

// Name returns the job name
func (j *AttributeAuditJob) Name() string {
	return "attribute_audit"
}

// Schedule returns the job definition
func (j *AttributeAuditJob) Schedule() gocron.JobDefinition {
	return gocron.DurationJob(j.interval)
}

// Execute runs one audit pass
func (j *AttributeAuditJob) Execute() {
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()

	if _, err := j.Run(ctx); err != nil {
		j.logger.Error("attribute audit failed", zap.Error(err))
	}
}

// Run pages through all attribute rows and returns the number of corrupt ones
func (j *AttributeAuditJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()
	var scanned, corrupt int64
	var afterID int64

	for {
		rows, err := j.repo.Scan(ctx, afterID, j.pageSize)
		if err != nil {
			return 0, err
		}
		for _, row := range rows {
			scanned++
			if _, err := row.Typed(); err != nil {
				corrupt++
				j.logger.Warn("corrupt attribute",
					zap.Int64("project_id", row.ProjectID),
					zap.String("key", row.Key),
					zap.String("value_type", row.ValueType),
					zap.Error(err),
				)
			}
		}
		if len(rows) < j.pageSize {
			break
		}
		afterID = rows[len(rows)-1].ID
	}

	if j.gauge != nil {
		j.gauge.SetCorruptAttributes(corrupt)
	}
	j.logger.Info("attribute audit finished",
		zap.Int64("scanned", scanned),
		zap.Int64("corrupt", corrupt),
		zap.Duration("duration", time.Since(start)),
	)
	return corrupt, nil
}
