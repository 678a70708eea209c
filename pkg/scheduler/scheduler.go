// Package scheduler runs one-shot and periodic callbacks on a gocron scheduler
// and hands back a cancellation func for each.
package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// CancelFunc cancels a scheduled callback. Calling it more than once is safe.
type CancelFunc func()

// Scheduler schedules callbacks
type Scheduler interface {
	After(d time.Duration, task func()) (CancelFunc, error)
	Every(d time.Duration, task func()) (CancelFunc, error)
}

// GocronScheduler implements Scheduler on top of gocron
type GocronScheduler struct {
	s      gocron.Scheduler
	logger *zap.Logger
}

// New creates and starts a scheduler
func New(logger *zap.Logger) (*GocronScheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.Start()

	return &GocronScheduler{s: s, logger: logger}, nil
}

// After runs task once after d
func (g *GocronScheduler) After(d time.Duration, task func()) (CancelFunc, error) {
	var start gocron.OneTimeJobStartAtOption
	if d <= 0 {
		start = gocron.OneTimeJobStartImmediately()
	} else {
		start = gocron.OneTimeJobStartDateTime(time.Now().Add(d))
	}

	job, err := g.s.NewJob(gocron.OneTimeJob(start), gocron.NewTask(task))
	if err != nil {
		return nil, fmt.Errorf("failed to schedule one-shot job: %w", err)
	}

	return g.cancelFor(job), nil
}

// Every runs task every d until cancelled
func (g *GocronScheduler) Every(d time.Duration, task func()) (CancelFunc, error) {
	job, err := g.s.NewJob(
		gocron.DurationJob(d),
		gocron.NewTask(task),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule periodic job: %w", err)
	}

	return g.cancelFor(job), nil
}

func (g *GocronScheduler) cancelFor(job gocron.Job) CancelFunc {
	id := job.ID()
	return func() {
		// a one-shot job that already ran is gone; that is not an error worth surfacing
		if err := g.s.RemoveJob(id); err != nil {
			g.logger.Debug("scheduled job already removed", zap.String("job_id", id.String()))
		}
	}
}

// Shutdown stops the scheduler and drops every pending job
func (g *GocronScheduler) Shutdown(timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- g.s.Shutdown() }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("scheduler shutdown timed out after %s", timeout)
	}
}
