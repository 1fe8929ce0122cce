package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs Job every Interval until its context ends. Runs never overlap:
// ticks that fire while a job is still running are dropped.
type Scheduler struct {
	Interval   time.Duration
	RunOnStart bool
	Job        func(ctx context.Context)
	Log        *zap.Logger
}

// Run blocks until ctx is done and then returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}
	if s.Interval <= 0 || s.Job == nil {
		log.Info("scheduler disabled")
		<-ctx.Done()
		return nil
	}
	log.Info("scheduler started", zap.Duration("interval", s.Interval), zap.Bool("run_on_start", s.RunOnStart))

	if s.RunOnStart {
		s.run(ctx, log)
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped")
			return nil
		case <-ticker.C:
			s.run(ctx, log)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, log *zap.Logger) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	s.Job(ctx)
	log.Debug("scheduled run finished", zap.Duration("took", time.Since(start)))
}
