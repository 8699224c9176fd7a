// Package scheduler runs the periodic pull-mode rule sweep.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper re-evaluates every active rule against latest readings.
// Failures are contained inside the sweep itself.
type Sweeper interface {
	Sweep(ctx context.Context)
}

// Scheduler wraps a cron runner with the sweep job.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.Logger
}

// New creates a stopped scheduler.
func New(log *zap.Logger) *Scheduler {
	return &Scheduler{cron: cron.New(), log: log}
}

// RegisterSweep schedules the rule sweep every intervalSecs seconds.
func (s *Scheduler) RegisterSweep(sweeper Sweeper, intervalSecs int) error {
	if intervalSecs <= 0 {
		intervalSecs = 60
	}
	spec := fmt.Sprintf("@every %ds", intervalSecs)
	_, err := s.cron.AddFunc(spec, func() {
		sweeper.Sweep(context.Background())
	})
	if err != nil {
		return fmt.Errorf("schedule sweep %q: %w", spec, err)
	}
	s.log.Info("rule sweep scheduled", zap.String("interval", spec))
	return nil
}

// Start begins firing scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}
