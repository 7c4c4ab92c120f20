package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Sweeper is a periodic maintenance task, e.g. events.Archiver.
type Sweeper interface {
	Run(ctx context.Context) (int64, error)
}

// NewArchiveScheduler returns a started scheduler running sweep every interval,
// once immediately, never overlapping itself. Call Shutdown to stop it.
func NewArchiveScheduler(ctx context.Context, sweep Sweeper, interval time.Duration, logger *zap.Logger) (gocron.Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if _, err := sweep.Run(ctx); err != nil {
				logger.Warn("archive sweep failed", zap.Error(err))
			}
		}),
		gocron.WithName("archive-ended-events"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule archive sweep: %w", err)
	}
	s.Start()
	logger.Info("archive sweep scheduled", zap.Duration("interval", interval))
	return s, nil
}
