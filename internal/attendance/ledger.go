// Package attendance records check-ins and check-outs from scanned registration codes.
//
// Every scan re-derives its action from the newest stored attendance row of the
// registration: no row or a closed row means check-in, an open row means
// check-out. The read and the write run inside Transactor.WithinRegistration so
// concurrent scans of one code cannot open two rows.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventpass/checkin-backend/internal/models"
)

// Action is what a scan resolved to.
type Action string

const (
	ActionCheckIn  Action = "CHECK_IN"
	ActionCheckOut Action = "CHECK_OUT"
)

// ParticipantSnapshot holds the participant fields shown to the operator.
type ParticipantSnapshot struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

// EventSnapshot identifies the event the registration belongs to.
type EventSnapshot struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// ScanResult is returned for every accepted scan.
type ScanResult struct {
	Action         Action              `json:"action"`
	Time           time.Time           `json:"time"`
	AttendanceID   int64               `json:"attendance_id"`
	RegistrationID uuid.UUID           `json:"registration_id"`
	Message        string              `json:"message"`
	Participant    ParticipantSnapshot `json:"participant"`
	Event          EventSnapshot       `json:"event"`
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger decides and records check-ins and check-outs.
type Ledger struct {
	registrations RegistrationStore
	tx            Transactor
	now           func() time.Time
	logger        *zap.Logger
}

// NewLedger creates a ledger. registrations serves the unlocked first lookup;
// tx supplies the locked stores for the decision itself.
func NewLedger(registrations RegistrationStore, tx Transactor, logger *zap.Logger, opts ...Option) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{registrations: registrations, tx: tx, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ProcessScan resolves code to a registration and toggles its attendance.
// actorID identifies the operator and is stored on new check-in rows.
func (l *Ledger) ProcessScan(ctx context.Context, code, actorID string) (*ScanResult, error) {
	code = strings.TrimSpace(code)
	actorID = strings.TrimSpace(actorID)
	if code == "" {
		return nil, fmt.Errorf("%w: scan code required", ErrInvalidInput)
	}
	if actorID == "" {
		return nil, fmt.Errorf("%w: actor required", ErrInvalidInput)
	}

	reg, err := l.registrations.FindByScanCode(ctx, code)
	if err != nil {
		l.logger.Error("scan lookup failed", zap.Error(err))
		return nil, persistence("find registration", err)
	}
	if err := checkScannable(reg); err != nil {
		return nil, err
	}

	var result *ScanResult
	err = l.tx.WithinRegistration(ctx, reg.ID, func(ctx context.Context, s Stores) error {
		// Re-read under the lock; a cancellation may have landed since the first lookup.
		cur, err := s.Registrations.FindByScanCode(ctx, code)
		if err != nil {
			return persistence("reload registration", err)
		}
		if err := checkScannable(cur); err != nil {
			return err
		}
		result, err = l.toggle(ctx, s, cur, actorID)
		return err
	})
	if err != nil {
		if IsRejection(err) {
			return nil, err
		}
		if !errors.Is(err, ErrPersistence) {
			err = persistence("transaction", err)
		}
		l.logger.Error("scan failed", zap.String("registration_id", reg.ID.String()), zap.Error(err))
		return nil, err
	}

	l.logger.Info("scan recorded",
		zap.String("registration_id", result.RegistrationID.String()),
		zap.String("action", string(result.Action)),
		zap.Int64("attendance_id", result.AttendanceID),
		zap.String("actor", actorID),
	)
	return result, nil
}

func (l *Ledger) toggle(ctx context.Context, s Stores, reg *models.RegistrationDetail, actorID string) (*ScanResult, error) {
	latest, err := s.Attendance.FindLatest(ctx, reg.ID)
	if err != nil {
		return nil, persistence("find latest attendance", err)
	}
	now := l.now()

	if latest == nil || !latest.Open() {
		// A new row must sort after the latest one, or FindLatest would miss it
		// when the clock steps back (skew between replicas, NTP corrections).
		at := now
		if latest != nil {
			at = strictlyAfter(at, latest.CheckInAt)
			if latest.CheckOutAt != nil {
				at = strictlyAfter(at, *latest.CheckOutAt)
			}
		}
		ev := &models.AttendanceEvent{
			RegistrationID: reg.ID,
			EventID:        reg.EventID,
			CheckInAt:      at,
			Status:         models.AttendanceCheckedIn,
			ScannedBy:      actorID,
		}
		if err := s.Attendance.Create(ctx, ev); err != nil {
			return nil, persistence("create attendance", err)
		}
		if reg.Status != models.RegistrationAttended {
			if err := s.Registrations.SetStatus(ctx, reg.ID, models.RegistrationAttended); err != nil {
				return nil, persistence("mark attended", err)
			}
		}
		return newResult(ActionCheckIn, ev.CheckInAt, ev.ID, reg), nil
	}

	// Check-out must land strictly after its check-in even when the clock has not advanced.
	closed, err := s.Attendance.UpdateCheckout(ctx, latest.ID, strictlyAfter(now, latest.CheckInAt))
	if err != nil {
		return nil, persistence("update checkout", err)
	}
	return newResult(ActionCheckOut, *closed.CheckOutAt, closed.ID, reg), nil
}

// strictlyAfter returns t, or floor plus one microsecond (the Postgres
// timestamp resolution) when t is not after floor.
func strictlyAfter(t, floor time.Time) time.Time {
	if t.After(floor) {
		return t
	}
	return floor.Add(time.Microsecond)
}

func checkScannable(reg *models.RegistrationDetail) error {
	if reg == nil {
		return ErrNotFound
	}
	if reg.Status == models.RegistrationCancelled {
		return ErrRegistrationCancelled
	}
	return nil
}

func newResult(action Action, at time.Time, attendanceID int64, reg *models.RegistrationDetail) *ScanResult {
	msg := "check-in recorded"
	if action == ActionCheckOut {
		msg = "check-out recorded"
	}
	return &ScanResult{
		Action:         action,
		Time:           at,
		AttendanceID:   attendanceID,
		RegistrationID: reg.ID,
		Message:        msg,
		Participant: ParticipantSnapshot{
			Name:    reg.Participant.Name,
			Email:   reg.Participant.Email,
			Phone:   reg.Participant.Phone,
			Company: reg.Participant.Company,
		},
		Event: EventSnapshot{ID: reg.Event.ID, Name: reg.Event.Name},
	}
}
