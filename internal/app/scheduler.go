/**
 * @description
 * Cron scheduler for the background jobs: the settlement sweep and the outbox flush.
 */
package app

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a named cron job.
type Job struct {
	Name     string
	Schedule string
	Run      func()
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   []Job
	logger *zap.Logger
}

// NewScheduler creates a scheduler whose jobs recover from panics and never overlap
// with themselves.
func NewScheduler(logger *zap.Logger, jobs ...Job) *Scheduler {
	logger = logger.Named("scheduler")
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
	}
}

// Start registers the jobs and starts the cron scheduler. It returns how many jobs were
// scheduled.
func (s *Scheduler) Start() int {
	scheduled := 0
	for _, job := range s.jobs {
		if job.Schedule == "" || job.Run == nil {
			continue
		}
		if _, err := s.cron.AddFunc(job.Schedule, job.Run); err != nil {
			s.logger.Error("failed to schedule job", zap.String("job", job.Name), zap.String("schedule", job.Schedule), zap.Error(err))
			continue
		}
		s.logger.Info("scheduled job", zap.String("job", job.Name), zap.String("schedule", job.Schedule))
		scheduled++
	}

	s.cron.Start()
	return scheduled
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
