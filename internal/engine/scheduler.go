package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Jobs are the runs the scheduler triggers.
type Jobs interface {
	RunCycle(ctx context.Context) (*CycleReport, error)
	RunStatus(ctx context.Context) (*StatusReport, error)
}

// Scheduler runs a cycle every hour at a fixed minute and the status report
// once a day, both in UTC. Jobs run one after another on a single goroutine.
type Scheduler struct {
	jobs        Jobs
	cycleMinute int
	statusHour  int
	statusMin   int

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewScheduler parses statusTime ("HH:MM") and validates cycleMinute.
func NewScheduler(jobs Jobs, cycleMinute int, statusTime string) (*Scheduler, error) {
	if cycleMinute < 0 || cycleMinute > 59 {
		return nil, fmt.Errorf("cycle minute %d out of range", cycleMinute)
	}
	t, err := time.Parse("15:04", statusTime)
	if err != nil {
		return nil, fmt.Errorf("status time %q: %w", statusTime, err)
	}
	return &Scheduler{
		jobs:        jobs,
		cycleMinute: cycleMinute,
		statusHour:  t.Hour(),
		statusMin:   t.Minute(),
		now:         time.Now,
		after:       time.After,
	}, nil
}

// NextCycle is the first cycle slot strictly after t.
func (s *Scheduler) NextCycle(t time.Time) time.Time {
	t = t.UTC()
	next := t.Truncate(time.Hour).Add(time.Duration(s.cycleMinute) * time.Minute)
	if !next.After(t) {
		next = next.Add(time.Hour)
	}
	return next
}

// NextStatus is the first status slot strictly after t.
func (s *Scheduler) NextStatus(t time.Time) time.Time {
	t = t.UTC()
	next := time.Date(t.Year(), t.Month(), t.Day(), s.statusHour, s.statusMin, 0, 0, time.UTC)
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run blocks until ctx is cancelled. When both jobs share a slot the cycle
// runs first.
func (s *Scheduler) Run(ctx context.Context) error {
	var last time.Time
	for {
		now := s.now()
		from := now
		if from.Before(last) {
			from = last
		}
		cycleAt, statusAt := s.NextCycle(from), s.NextStatus(from)
		at := cycleAt
		if statusAt.Before(at) {
			at = statusAt
		}
		log.Printf("⏰ next run at %s", at.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(at.Sub(now)):
		}
		last = at

		if !cycleAt.After(at) {
			if _, err := s.jobs.RunCycle(ctx); err != nil {
				logJobError(KindCycle, err)
			}
		}
		if !statusAt.After(at) {
			if _, err := s.jobs.RunStatus(ctx); err != nil {
				logJobError(KindStatus, err)
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func logJobError(kind string, err error) {
	if errors.Is(err, ErrBusy) {
		log.Printf("⚠️ %s skipped: %v", kind, err)
		return
	}
	log.Printf("❌ scheduled %s: %v", kind, err)
}
