package scheduler

import (
	"context"
	"time"
)

// Job is a unit of periodic work. Name must be unique within a Scheduler.
type Job interface {
	Name() string
	// Run performs one execution. ctx is cancelled when the scheduler stops or
	// the configured timeout elapses.
	Run(ctx context.Context) error
}

// Schedule computes the next start time from the time the current tick fired.
type Schedule interface {
	Next(after time.Time) time.Time
}

// IntervalSchedule fires at a fixed cadence.
type IntervalSchedule struct {
	interval time.Duration
}

// NewIntervalSchedule returns a schedule that fires every interval.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{interval: interval}
}

func (s *IntervalSchedule) Next(after time.Time) time.Time {
	return after.Add(s.interval)
}

// Interval returns the configured cadence.
func (s *IntervalSchedule) Interval() time.Duration {
	return s.interval
}

// JobConfig controls how a registered job is run.
type JobConfig struct {
	Enabled bool
	// Timeout bounds one execution; zero means no limit.
	Timeout time.Duration
}
