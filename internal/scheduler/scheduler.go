// Package scheduler repeats scan runs on cron schedules. Runs of the same job
// never overlap: a tick that fires while the previous run is still going is
// skipped.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/anstrom/bannerscan/internal/errors"
	"github.com/anstrom/bannerscan/internal/logging"
)

// JobFunc is the work executed on each tick.
type JobFunc func(ctx context.Context) error

// ScheduledJob describes a registered job.
type ScheduledJob struct {
	ID       uuid.UUID
	CronID   cron.EntryID
	Name     string
	CronExpr string
	LastRun  time.Time
	LastErr  error
	NextRun  time.Time
	Runs     int
	Running  bool
}

type job struct {
	ScheduledJob
	fn JobFunc
}

// Scheduler manages cron-driven jobs.
type Scheduler struct {
	cron    *cron.Cron
	jobs    map[uuid.UUID]*job
	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *logging.Logger
}

// NewScheduler creates a scheduler. Jobs run with a context that is canceled
// by Stop.
func NewScheduler(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.WithComponent("scheduler")
	ctx, cancel := context.WithCancel(context.Background())

	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		jobs:   make(map[uuid.UUID]*job),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// ValidateExpr checks a standard five-field cron expression or descriptor.
func ValidateExpr(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return errors.NewConfigFieldError(errors.CodeValidation,
			fmt.Sprintf("invalid cron expression: %v", err), "schedule.cron", expr)
	}
	return nil
}

// AddJob registers fn under name and returns the job's ID.
func (s *Scheduler) AddJob(name, cronExpr string, fn JobFunc) (uuid.UUID, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return uuid.Nil, ValidateExpr(cronExpr)
	}

	j := &job{
		ScheduledJob: ScheduledJob{
			ID:       uuid.New(),
			Name:     name,
			CronExpr: cronExpr,
			NextRun:  schedule.Next(time.Now()),
		},
		fn: fn,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j.CronID = s.cron.Schedule(schedule, cron.FuncJob(func() { s.execute(j.ID) }))
	s.jobs[j.ID] = j

	s.logger.Info("Added scheduled job", "name", name, "schedule", cronExpr, "next_run", j.NextRun)
	return j.ID, nil
}

// RemoveJob unregisters a job.
func (s *Scheduler) RemoveJob(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	s.cron.Remove(j.CronID)
	delete(s.jobs, id)

	s.logger.Info("Removed scheduled job", "name", j.Name)
	return nil
}

// RunNow executes a job immediately on the caller's goroutine, outside the
// cron chain. It is skipped if the job is already running.
func (s *Scheduler) RunNow(id uuid.UUID) error {
	s.mu.RLock()
	_, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	s.execute(id)
	return nil
}

// GetJobs returns a snapshot of every registered job.
func (s *Scheduler) GetJobs() []ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]ScheduledJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		snap := j.ScheduledJob
		if entry := s.cron.Entry(j.CronID); entry.Valid() && !entry.Next.IsZero() {
			snap.NextRun = entry.Next
		}
		jobs = append(jobs, snap)
	}
	return jobs
}

// Start begins firing jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.cron.Start()
	s.running = true

	s.logger.Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.cancel()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()

	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) execute(id uuid.UUID) {
	j, ok := s.prepareJobExecution(id)
	if !ok {
		return
	}

	s.logger.Info("Running scheduled job", "name", j.Name)

	var err error
	defer func() {
		s.mu.Lock()
		j.Running = false
		j.Runs++
		j.LastErr = err
		s.mu.Unlock()
	}()

	err = j.fn(s.ctx)
	if err != nil {
		s.logger.WithError(err).Error("Scheduled job failed", "name", j.Name)
		return
	}
	s.logger.Info("Scheduled job completed", "name", j.Name)
}

func (s *Scheduler) prepareJobExecution(id uuid.UUID) (*job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	if j.Running {
		s.logger.Warn("Scheduled job is already running, skipping", "name", j.Name)
		return nil, false
	}
	j.Running = true
	j.LastRun = time.Now()
	return j, true
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct {
	l *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
