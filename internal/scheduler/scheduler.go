package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the daemon's recurring maintenance jobs on cron schedules:
// flushing the outbound message queue, sweeping abandoned intake sessions.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]cron.EntryID
	logger *slog.Logger
}

// New creates a new scheduler.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(),
		jobs:   make(map[string]cron.EntryID),
		logger: logger,
	}
}

// Start begins the cron scheduler. Blocks until context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", s.JobCount())

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// AddJob registers a named job on a cron schedule. The schedule is a standard
// 5-field cron expression or a predefined one like @every 5m. Registering a
// name twice replaces the earlier job.
func (s *Scheduler) AddJob(name, schedule string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old)
	}

	id, err := s.cron.AddFunc(schedule, func() {
		s.logger.Debug("maintenance job fired", "job", name)
		fn()
	})
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for %s: %w", schedule, name, err)
	}

	s.jobs[name] = id
	s.logger.Info("maintenance job registered", "job", name, "schedule", schedule)
	return nil
}

// RemoveJob removes a named job.
func (s *Scheduler) RemoveJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobs[name]; ok {
		s.cron.Remove(id)
		delete(s.jobs, name)
	}
}

// JobCount returns the number of registered jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
