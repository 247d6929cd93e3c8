// Package jobs runs periodic maintenance tasks on a gocron scheduler.
package jobs

import (
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Job is a periodic task
type Job interface {
	Name() string
	Schedule() gocron.JobDefinition
	Execute()
}

// Manager owns the scheduler and its registered jobs
type Manager struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger
}

// NewManager creates a new Manager
func NewManager(logger *zap.Logger) (*Manager, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		scheduler: s,
		logger:    logger.Named("jobs"),
	}, nil
}

// Register adds a job. Overlapping runs are skipped and rescheduled.
func (m *Manager) Register(job Job) error {
	_, err := m.scheduler.NewJob(
		job.Schedule(),
		gocron.NewTask(job.Execute),
		gocron.WithName(job.Name()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", job.Name(), err)
	}
	m.logger.Info("job registered", zap.String("job", job.Name()))
	return nil
}

// Jobs returns the names of the registered jobs
func (m *Manager) Jobs() []string {
	jobs := m.scheduler.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

// Start starts the scheduler
func (m *Manager) Start() {
	m.scheduler.Start()
	m.logger.Info("job manager started")
}

// Stop shuts the scheduler down and waits for running jobs
func (m *Manager) Stop() error {
	if err := m.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	m.logger.Info("job manager stopped")
	return nil
}
