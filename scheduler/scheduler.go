// Package scheduler runs jobs on fixed schedules. A job never overlaps with itself:
// a tick that fires while the previous run is still in progress is skipped, not queued.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// scheduledJob tracks a job and its schedule
type scheduledJob struct {
	job      Job
	schedule Schedule
	config   JobConfig
	nextRun  time.Time
	timer    *time.Timer
	running  atomic.Bool
	runs     atomic.Int64
	skipped  atomic.Int64
}

// Scheduler manages and executes scheduled jobs
type Scheduler struct {
	jobs   map[string]*scheduledJob
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	// stopTimeout bounds how long Stop waits for running jobs.
	stopTimeout time.Duration
}

// New creates a new Scheduler
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:        make(map[string]*scheduledJob),
		logger:      logger.With("component", "scheduler"),
		stopTimeout: 30 * time.Second,
	}
}

// AddJob registers a job with the scheduler
func (s *Scheduler) AddJob(job Job, schedule Schedule, config JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	if !config.Enabled {
		s.logger.Info("job is disabled, skipping", "job", name)
		return nil
	}

	s.jobs[name] = &scheduledJob{
		job:      job,
		schedule: schedule,
		config:   config,
		nextRun:  schedule.Next(time.Now()),
	}

	s.logger.Info("registered job", "job", name, "next_run", s.jobs[name].nextRun.Format(time.RFC3339))
	return nil
}

// Start begins executing all scheduled jobs
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx != nil {
		return fmt.Errorf("scheduler already started")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	// Start each job's timer
	for name, sj := range s.jobs {
		s.logger.Debug("starting job", "job", name)
		s.scheduleJob(name, sj)
	}

	s.logger.Info("scheduler started", "jobs", len(s.jobs))
	return nil
}

// scheduleJob sets up the timer for the next execution. Callers hold s.mu.
func (s *Scheduler) scheduleJob(name string, sj *scheduledJob) {
	duration := time.Until(sj.nextRun)
	if duration < 0 {
		duration = 0
	}

	sj.timer = time.AfterFunc(duration, func() {
		s.tick(name, sj)
	})
}

// tick arms the following tick first, so the cadence does not depend on how long
// the job takes, then runs the job unless its previous run is still active.
func (s *Scheduler) tick(name string, sj *scheduledJob) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	now := time.Now()
	sj.nextRun = sj.schedule.Next(sj.nextRun)
	if !sj.nextRun.After(now) {
		sj.nextRun = sj.schedule.Next(now)
	}
	s.scheduleJob(name, sj)
	s.wg.Add(1)
	s.mu.Unlock()

	defer s.wg.Done()
	s.execute(name, sj, "scheduled")
}

// execute runs the job once if it is not already running.
func (s *Scheduler) execute(name string, sj *scheduledJob, trigger string) bool {
	if !sj.running.CompareAndSwap(false, true) {
		sj.skipped.Add(1)
		s.logger.Warn("previous run still in progress, skipping", "job", name, "trigger", trigger)
		return false
	}
	defer sj.running.Store(false)

	// Create context with timeout if configured
	ctx := s.ctx
	if sj.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, sj.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	s.logger.Debug("executing job", "job", name, "trigger", trigger)

	err := sj.job.Run(ctx)
	duration := time.Since(start)
	sj.runs.Add(1)

	if err != nil {
		s.logger.Warn("job finished with errors", "job", name, "duration", duration, "error", err)
	} else {
		s.logger.Debug("job completed", "job", name, "duration", duration)
	}
	return true
}

// Stop gracefully stops the scheduler
// It waits for running jobs to complete (with a timeout)
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not started")
	}

	s.logger.Info("stopping scheduler")

	// Cancel context to signal all jobs to stop
	s.cancel()

	// Stop all timers
	for _, sj := range s.jobs {
		if sj.timer != nil {
			sj.timer.Stop()
		}
	}
	s.mu.Unlock()

	// Wait for running jobs to complete (with timeout)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("all jobs stopped gracefully")
	case <-time.After(s.stopTimeout):
		s.logger.Warn("timeout waiting for jobs to stop", "timeout", s.stopTimeout)
	}

	return nil
}

// RunJobNow manually triggers a job execution (non-blocking).
// The run is skipped if the job is already running.
func (s *Scheduler) RunJobNow(name string) error {
	s.mu.Lock()
	sj, exists := s.jobs[name]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("job %s not found", name)
	}
	if s.ctx == nil || s.ctx.Err() != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not running")
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.execute(name, sj, "manual")
	}()

	return nil
}

// GetJobs returns the names of all registered jobs
func (s *Scheduler) GetJobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// GetNextRun returns the next scheduled run time for a job
func (s *Scheduler) GetNextRun(name string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sj, exists := s.jobs[name]
	if !exists {
		return time.Time{}, fmt.Errorf("job %s not found", name)
	}

	return sj.nextRun, nil
}

// JobStats reports how many times a job ran and how many ticks were skipped.
type JobStats struct {
	Runs    int64
	Skipped int64
	Running bool
}

// GetJobStats returns execution counters for a job
func (s *Scheduler) GetJobStats(name string) (JobStats, error) {
	s.mu.RLock()
	sj, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return JobStats{}, fmt.Errorf("job %s not found", name)
	}

	return JobStats{
		Runs:    sj.runs.Load(),
		Skipped: sj.skipped.Load(),
		Running: sj.running.Load(),
	}, nil
}
