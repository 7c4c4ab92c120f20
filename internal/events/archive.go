package events

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// EndedArchiver is the repository call behind Archiver.
type EndedArchiver interface {
	ArchiveEndedBefore(ctx context.Context, cutoff, at time.Time) (int64, error)
}

// ArchiveCutoff returns the start of now's day. Events ending before it ended
// yesterday or earlier.
func ArchiveCutoff(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// Archiver archives events that have already ended. Used by POST /events/archive
// and by the worker's periodic sweep.
type Archiver struct {
	repo   EndedArchiver
	now    func() time.Time
	logger *zap.Logger
}

// NewArchiver creates an archiver.
func NewArchiver(repo EndedArchiver, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{repo: repo, now: time.Now, logger: logger}
}

// Run archives every event that ended before today and returns how many changed.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	now := a.now()
	n, err := a.repo.ArchiveEndedBefore(ctx, ArchiveCutoff(now), now)
	if err != nil {
		a.logger.Error("archive ended events failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		a.logger.Info("archived ended events", zap.Int64("count", n))
	}
	return n, nil
}
