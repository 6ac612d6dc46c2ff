package monitor

import (
	"context"
	"time"

	"lecca.io/oasys-watchtower/internal/config"
	"lecca.io/oasys-watchtower/internal/logger"
)

type Cycler interface {
	RunCycle(ctx context.Context) (Report, error)
	SendDailySummary(ctx context.Context) (Report, error)
	ReportFailure(ctx context.Context, err error)
}

// Scheduler drives cycles from a single goroutine so they never overlap.
type Scheduler struct {
	cycler   Cycler
	interval time.Duration
	summary  config.DailySummaryConfig
	location *time.Location
	now      func() time.Time
}

func NewScheduler(cycler Cycler, cfg config.ScheduleConfig) *Scheduler {
	interval := cfg.CheckIntervalDuration()
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		cycler:   cycler,
		interval: interval,
		summary:  cfg.DailySummary,
		location: cfg.DailySummary.Location(),
		now:      time.Now,
	}
}

// NextDaily returns the first hour:00 in loc strictly after now.
func NextDaily(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(now) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, loc)
	}
	return next
}

// Run performs one cycle immediately, then one per interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	logger.Info("SCHED", "Monitoring every %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var (
		daily      <-chan time.Time
		dailyTimer *time.Timer
	)
	if s.summary.Enabled {
		dailyTimer = s.armDaily()
		daily = dailyTimer.C
	}
	defer func() {
		if dailyTimer != nil {
			dailyTimer.Stop()
		}
	}()

	s.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("SCHED", "Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.cycle(ctx)
		case <-daily:
			if _, err := s.cycler.SendDailySummary(ctx); err != nil {
				logger.Error("SCHED", "Daily summary failed: %v", err)
			}
			dailyTimer = s.armDaily()
			daily = dailyTimer.C
		}
	}
}

func (s *Scheduler) armDaily() *time.Timer {
	now := s.now()
	next := NextDaily(now, s.summary.Hour, s.location)
	logger.Info("SCHED", "Next daily summary at %s", next.Format("2006-01-02 15:04 MST"))
	return time.NewTimer(next.Sub(now))
}

func (s *Scheduler) cycle(ctx context.Context) {
	if _, err := s.cycler.RunCycle(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		s.cycler.ReportFailure(ctx, err)
	}
}
