package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ProjectChannel is the NOTIFY channel the schema triggers publish on
const ProjectChannel = "warehouse_project_changed"

// Invalidator drops cached state for projects
type Invalidator interface {
	Invalidate(ctx context.Context, id int64)
	InvalidateAll(ctx context.Context)
}

// InvalidationListener keeps caches of several server instances coherent.
// Every project or attribute write fires a NOTIFY carrying the project ID;
// each instance LISTENs and drops its cached view of that project.
type InvalidationListener struct {
	mu           sync.Mutex
	connStr      string
	target       Invalidator
	logger       *zap.Logger
	listener     *pq.Listener
	pingInterval time.Duration
	stopCh       chan struct{}
	doneCh       chan struct{}
	stopped      bool
}

// NewInvalidationListener creates a listener. connStr is a lib/pq connection
// string; the listener holds its own connection outside the pool.
func NewInvalidationListener(connStr string, target Invalidator, logger *zap.Logger) *InvalidationListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvalidationListener{
		connStr:      connStr,
		target:       target,
		logger:       logger.Named("cache_listener"),
		pingInterval: 90 * time.Second,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start opens the listening connection and begins dispatching notifications
func (l *InvalidationListener) Start(ctx context.Context) error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			l.logger.Warn("listener connection problem", zap.Error(err))
		}
	}

	listener := pq.NewListener(l.connStr, 10*time.Second, time.Minute, reportProblem)
	if err := listener.Listen(ProjectChannel); err != nil {
		listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", ProjectChannel, err)
	}

	l.mu.Lock()
	l.listener = listener
	l.mu.Unlock()

	go l.run(listener.Notify)
	l.logger.Info("listening for project changes", zap.String("channel", ProjectChannel))
	return nil
}

// Stop closes the listener and waits for the dispatch loop to exit
func (l *InvalidationListener) Stop() error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	close(l.stopCh)
	listener := l.listener
	l.mu.Unlock()

	if listener == nil {
		return nil
	}
	<-l.doneCh
	return listener.Close()
}

func (l *InvalidationListener) run(notify <-chan *pq.Notification) {
	defer close(l.doneCh)

	ticker := time.NewTicker(l.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case n := <-notify:
			l.dispatch(n)
		case <-ticker.C:
			go func() {
				if err := l.listener.Ping(); err != nil {
					l.logger.Warn("listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

// dispatch applies one notification. A nil notification means the connection
// was re-established and events may have been lost, so everything is dropped.
func (l *InvalidationListener) dispatch(n *pq.Notification) {
	ctx := context.Background()
	if n == nil {
		l.logger.Info("listener reconnected, dropping all cached projects")
		l.target.InvalidateAll(ctx)
		return
	}

	id, err := strconv.ParseInt(n.Extra, 10, 64)
	if err != nil {
		l.logger.Warn("ignoring malformed notification", zap.String("payload", n.Extra), zap.Error(err))
		return
	}
	l.target.Invalidate(ctx, id)
	l.logger.Debug("project invalidated", zap.Int64("project_id", id))
}
