package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const defaultInterval = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Schedule *Schedule
	Lock     Lock
	Metrics  *metrics.CronMetrics
	// Interval is the tick length; per-job cadences are multiples of it in practice.
	Interval time.Duration
}

// Service runs the scheduled settlement sweeps while holding the leader lock.
type Service struct {
	logg     *logger.Logger
	schedule *Schedule
	lock     Lock
	metrics  *metrics.CronMetrics
	interval time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	schedule := params.Schedule
	if schedule == nil {
		schedule = NewSchedule()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		schedule: schedule,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		now:      time.Now,
	}, nil
}

// Run ticks until ctx is canceled. The first tick fires immediately.
func (s *Service) Run(ctx context.Context) error {
	s.tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if err := s.runDue(ctx); err != nil {
		s.logg.Error(ctx, "cron tick failed", err)
	}
}

func (s *Service) runDue(ctx context.Context) error {
	due := s.schedule.Due(s.now())
	if len(due) == 0 {
		return nil
	}
	leader, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire leader lock: %w", err)
	}
	if !leader {
		s.metrics.IncSkipped()
		s.logg.Debug(ctx, "leader lock held elsewhere; skipping tick")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "release leader lock", err)
		}
	}()

	for i, job := range due {
		if i > 0 {
			still, err := s.lock.Extend(ctx)
			if err != nil {
				return fmt.Errorf("extend leader lock: %w", err)
			}
			if !still {
				s.logg.Warn(ctx, "leader lock lost mid-tick; deferring remaining jobs")
				return nil
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.runJob(ctx, job)
	}
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	started := s.now()
	err := job.Run(jobCtx)
	took := s.now().Sub(started)
	s.schedule.MarkRan(job.Name(), started)
	s.metrics.ObserveRun(job.Name(), took, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron job failed", err)
		return
	}
	s.logg.Debug(jobCtx, "cron job finished")
}
