package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/eventpass/checkin-backend/internal/models"
)

// RegistrationStore is the part of the registration store a scan needs.
type RegistrationStore interface {
	// FindByScanCode returns the registration with its participant and event,
	// or (nil, nil) when the code is unknown.
	FindByScanCode(ctx context.Context, code string) (*models.RegistrationDetail, error)
	SetStatus(ctx context.Context, registrationID uuid.UUID, status models.RegistrationStatus) error
}

// AttendanceStore is the append-mostly log of check-ins.
type AttendanceStore interface {
	// FindLatest returns the newest row for the registration by (check_in_at, id),
	// open or closed, or (nil, nil) when there is none.
	FindLatest(ctx context.Context, registrationID uuid.UUID) (*models.AttendanceEvent, error)
	// Create inserts ev and fills in its ID and CreatedAt.
	Create(ctx context.Context, ev *models.AttendanceEvent) error
	// UpdateCheckout closes the open row eventID at the given time.
	UpdateCheckout(ctx context.Context, eventID int64, at time.Time) (*models.AttendanceEvent, error)
}

// Stores groups the stores bound to one unit of work.
type Stores struct {
	Registrations RegistrationStore
	Attendance    AttendanceStore
}

// Transactor serializes scans of the same registration. fn runs with exclusive
// access to the registration's attendance rows; its writes commit only if it
// returns nil.
type Transactor interface {
	WithinRegistration(ctx context.Context, registrationID uuid.UUID, fn func(ctx context.Context, s Stores) error) error
}
