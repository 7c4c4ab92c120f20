// Package worker runs background jobs: QR code emails from the Redis queue and
// the periodic archive sweep.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventpass/checkin-backend/internal/models"
	"github.com/eventpass/checkin-backend/internal/notify"
	"github.com/eventpass/checkin-backend/internal/registrations"
	"github.com/eventpass/checkin-backend/pkg/qrcode"
	"github.com/eventpass/checkin-backend/pkg/queue"
)

// errPermanent marks failures that retrying cannot fix.
var errPermanent = errors.New("permanent job failure")

// JobSource is the queue the processor consumes.
type JobSource interface {
	Dequeue(ctx context.Context, key string) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (dead bool, err error)
}

// RegistrationLoader loads the registration an email is about.
type RegistrationLoader interface {
	GetDetail(ctx context.Context, id uuid.UUID) (*models.RegistrationDetail, error)
}

// EmailLogUpdater records delivery outcomes.
type EmailLogUpdater interface {
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// EmailProcessor sends queued QR code emails.
type EmailProcessor struct {
	jobs          JobSource
	registrations RegistrationLoader
	logs          EmailLogUpdater
	mailer        notify.Mailer
	publicBaseURL string
	backoff       time.Duration
	logger        *zap.Logger
}

// NewEmailProcessor creates a QR email processor.
func NewEmailProcessor(jobs JobSource, regs RegistrationLoader, logs EmailLogUpdater, mailer notify.Mailer, publicBaseURL string, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailProcessor{
		jobs:          jobs,
		registrations: regs,
		logs:          logs,
		mailer:        mailer,
		publicBaseURL: publicBaseURL,
		backoff:       queue.RetryBackoff,
		logger:        logger,
	}
}

// Process executes one QR code email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeQRCodeEmail {
		return fmt.Errorf("%w: unknown job type %s", errPermanent, job.Type)
	}
	var payload queue.QRCodeEmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("%w: unmarshal payload: %v", errPermanent, err)
	}

	d, err := p.registrations.GetDetail(ctx, payload.RegistrationID)
	if errors.Is(err, registrations.ErrNotFound) {
		return fmt.Errorf("%w: registration %s not found", errPermanent, payload.RegistrationID)
	}
	if err != nil {
		return fmt.Errorf("load registration: %w", err)
	}
	if d.Status == models.RegistrationCancelled {
		return fmt.Errorf("%w: registration %s cancelled", errPermanent, d.ID)
	}

	png, err := qrcode.PNG(d.ScanCode, qrcode.DefaultSize)
	if err != nil {
		return fmt.Errorf("%w: render qr: %v", errPermanent, err)
	}
	err = p.mailer.SendQRCode(ctx, notify.QRCodeMessage{
		To:        d.Participant.Email,
		Name:      d.Participant.Name,
		Subject:   payload.Subject,
		EventName: d.Event.Name,
		ScanCode:  d.ScanCode,
		QRPageURL: registrations.QRPageURL(p.publicBaseURL, d.ScanCode),
		PNG:       png,
	})
	if err != nil {
		return err
	}
	if err := p.logs.MarkSent(ctx, payload.EmailLogID, time.Now()); err != nil {
		p.logger.Error("mark email sent failed", zap.Error(err), zap.String("email_log_id", payload.EmailLogID.String()))
	}
	p.logger.Info("qr email sent",
		zap.String("registration_id", d.ID.String()),
		zap.String("to", d.Participant.Email),
	)
	return nil
}

// Handle processes job and decides between done, retry and dead-letter.
// A requeued job is followed by the retry backoff so short outages do not
// burn through every attempt.
func (p *EmailProcessor) Handle(ctx context.Context, job *queue.Job) {
	err := p.Process(ctx, job)
	if err == nil {
		return
	}
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))

	if errors.Is(err, errPermanent) {
		p.markFailed(ctx, job, err)
		return
	}
	dead, reErr := p.jobs.Retry(ctx, job)
	if reErr != nil {
		p.logger.Error("retry enqueue failed", zap.Error(reErr))
		p.markFailed(ctx, job, err)
		return
	}
	if dead {
		p.markFailed(ctx, job, err)
		return
	}
	p.sleep(ctx)
}

func (p *EmailProcessor) markFailed(ctx context.Context, job *queue.Job, cause error) {
	var payload queue.QRCodeEmailPayload
	if json.Unmarshal(job.Payload, &payload) != nil || payload.EmailLogID == uuid.Nil {
		return
	}
	if err := p.logs.MarkFailed(ctx, payload.EmailLogID, cause.Error()); err != nil {
		p.logger.Error("mark email failed failed", zap.Error(err))
	}
}

// Run consumes the email queue until ctx is cancelled.
func (p *EmailProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("email worker stopping")
			return
		}
		job, err := p.jobs.Dequeue(ctx, queue.QueueEmails)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}
		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		p.Handle(ctx, job)
	}
}

func (p *EmailProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
