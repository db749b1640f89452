package app

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// Sweeper periodically advances session-owned timers (overall timeout, disconnect grace,
// unacknowledged sessions) and retries unsettled results.
type Sweeper struct {
	scheduler gocron.Scheduler
	battles   *BattleService
	interval  time.Duration
}

func NewSweeper(battles *BattleService, interval time.Duration) (*Sweeper, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Sweeper{scheduler: scheduler, battles: battles, interval: interval}, nil
}

// Start schedules the sweep; overlapping runs are skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			if err := s.battles.Sweep(ctx); err != nil {
				logrus.Errorf("[sweeper] %v", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	s.scheduler.Start()
	logrus.Infof("session sweeper running every %s", s.interval)
	return nil
}

// Stop waits for a running sweep and stops the scheduler.
func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}
