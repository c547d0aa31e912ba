package scheduler

import (
	"context"
	"sync"
	"time"

	"AdvisoryScanner/internal/ports"
)

// IntervalScheduler fires a job at fixed intervals aligned to midnight of
// its time zone, so an hourly schedule runs on the hour.
type IntervalScheduler struct {
	interval   time.Duration
	location   *time.Location
	runOnStart bool
	now        func() time.Time

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler builds a scheduler. A nil location means UTC.
func NewIntervalScheduler(interval time.Duration, loc *time.Location, runOnStart bool) *IntervalScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &IntervalScheduler{
		interval:   interval,
		location:   loc,
		runOnStart: runOnStart,
		now:        time.Now,
	}
}

// Start launches the ticking goroutine. Calling it twice is a no-op.
func (s *IntervalScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil || s.interval <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.done = stop, done

	go func() {
		defer close(done)
		if s.runOnStart {
			job(s.now().In(s.location))
		}

		timer := time.NewTimer(s.NextRun(s.now()).Sub(s.now()))
		defer timer.Stop()
		for {
			select {
			case <-timer.C:
				now := s.now().In(s.location)
				job(now)
				timer.Reset(s.NextRun(s.now()).Sub(s.now()))
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the goroutine and waits for an in-flight job, or for ctx.
func (s *IntervalScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NextRun returns the first slot strictly after from.
func (s *IntervalScheduler) NextRun(from time.Time) time.Time {
	local := from.In(s.location)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.location)
	elapsed := local.Sub(midnight)
	slots := elapsed/s.interval + 1
	return midnight.Add(slots * s.interval)
}
