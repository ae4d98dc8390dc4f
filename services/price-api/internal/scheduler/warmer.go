// Package scheduler keeps the pipeline caches warm in the background.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type Refresher interface {
	Name() string
	Refresh(ctx context.Context) error
}

// Job pairs a pipeline with its cron spec.
type Job struct {
	Refresher Refresher
	Schedule  string
}

type Warmer struct {
	jobs   []Job
	cron   *cron.Cron
	logger *logrus.Logger
	wg     sync.WaitGroup
}

func NewWarmer(jobs []Job, logger *logrus.Logger) *Warmer {
	cronScheduler := cron.New(cron.WithSeconds())

	return &Warmer{
		jobs:   jobs,
		cron:   cronScheduler,
		logger: logger,
	}
}

// Start registers every job, runs an initial warm in the background and
// starts the cron loop. Refresh failures are logged and never stop the loop.
func (w *Warmer) Start(ctx context.Context) error {
	for _, job := range w.jobs {
		job := job
		if _, err := w.cron.AddFunc(job.Schedule, func() {
			w.refresh(ctx, job.Refresher)
		}); err != nil {
			return fmt.Errorf("schedule %s warm %q: %w", job.Refresher.Name(), job.Schedule, err)
		}
		w.logger.WithFields(logrus.Fields{
			"pipeline": job.Refresher.Name(),
			"schedule": job.Schedule,
		}).Info("Scheduled cache warm")
	}

	w.cron.Start()

	for _, job := range w.jobs {
		w.wg.Add(1)
		go func(r Refresher) {
			defer w.wg.Done()
			w.refresh(ctx, r)
		}(job.Refresher)
	}

	w.logger.Info("Cache warmer started successfully")
	return nil
}

// Stop halts scheduling and waits for running warms to finish.
func (w *Warmer) Stop() {
	w.logger.Info("Stopping cache warmer")
	<-w.cron.Stop().Done()
	w.wg.Wait()
}

func (w *Warmer) refresh(ctx context.Context, r Refresher) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	if err := r.Refresh(ctx); err != nil {
		w.logger.WithError(err).WithField("pipeline", r.Name()).Warn("Cache warm failed")
		return
	}

	w.logger.WithFields(logrus.Fields{
		"pipeline":    r.Name(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Cache warm completed")
}
