package registrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventpass/checkin-backend/internal/models"
)

// maxCodeAttempts bounds retries on a scan code collision.
const maxCodeAttempts = 3

// Store is the registration repository as used by Service and Handler.
type Store interface {
	CheckEnrollable(ctx context.Context, participantID, eventID uuid.UUID) error
	FindByParticipantEvent(ctx context.Context, participantID, eventID uuid.UUID) (*models.Registration, error)
	Create(ctx context.Context, reg *models.Registration) error
	Reactivate(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	Cancel(ctx context.Context, participantID, eventID uuid.UUID) (*models.Registration, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*models.RegistrationDetail, error)
	FindByScanCode(ctx context.Context, code string) (*models.RegistrationDetail, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.RegistrationDetail, error)
}

// Service enrolls participants into events and cancels enrollments.
type Service struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a registration service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, now: time.Now, logger: logger}
}

// Enroll registers a participant into an event. A cancelled registration for
// the same pair is reactivated with its original scan code; an active one
// yields ErrAlreadyRegistered.
func (s *Service) Enroll(ctx context.Context, participantID, eventID uuid.UUID) (reg *models.Registration, reactivated bool, err error) {
	existing, err := s.store.FindByParticipantEvent(ctx, participantID, eventID)
	switch {
	case err == nil:
		if existing.Status != models.RegistrationCancelled {
			return nil, false, ErrAlreadyRegistered
		}
		if err := s.store.CheckEnrollable(ctx, participantID, eventID); err != nil {
			return nil, false, err
		}
		reg, err := s.store.Reactivate(ctx, existing.ID)
		if err != nil {
			return nil, false, err
		}
		s.logger.Info("registration reactivated", zap.String("registration_id", reg.ID.String()))
		return reg, true, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	if err := s.store.CheckEnrollable(ctx, participantID, eventID); err != nil {
		return nil, false, err
	}
	for attempt := 1; ; attempt++ {
		code, err := NewScanCode(s.now())
		if err != nil {
			return nil, false, fmt.Errorf("generate scan code: %w", err)
		}
		reg = &models.Registration{
			ParticipantID: participantID,
			EventID:       eventID,
			ScanCode:      code,
			Status:        models.RegistrationConfirmed,
		}
		err = s.store.Create(ctx, reg)
		if err == nil {
			break
		}
		if !errors.Is(err, errScanCodeTaken) || attempt >= maxCodeAttempts {
			return nil, false, err
		}
		s.logger.Warn("scan code collision, retrying", zap.Int("attempt", attempt))
	}
	s.logger.Info("registration created",
		zap.String("registration_id", reg.ID.String()),
		zap.String("event_id", eventID.String()),
	)
	return reg, false, nil
}

// Cancel marks a registration CANCELLED. Its scan code stays reserved.
func (s *Service) Cancel(ctx context.Context, participantID, eventID uuid.UUID) (*models.Registration, error) {
	reg, err := s.store.Cancel(ctx, participantID, eventID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("registration cancelled", zap.String("registration_id", reg.ID.String()))
	return reg, nil
}
