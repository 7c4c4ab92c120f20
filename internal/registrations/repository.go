package registrations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/eventpass/checkin-backend/internal/models"
	"github.com/eventpass/checkin-backend/pkg/database"
)

var (
	// ErrNotFound is returned when no registration matches.
	ErrNotFound = errors.New("registration not found")
	// ErrAlreadyRegistered is returned when an active registration exists for the pair.
	ErrAlreadyRegistered = errors.New("participant already registered for this event")
	// ErrParticipantNotFound is returned when enrolling an unknown participant.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrEventNotFound is returned when enrolling into an unknown event.
	ErrEventNotFound = errors.New("event not found")
	// ErrEventArchived is returned when enrolling into an archived event.
	ErrEventArchived = errors.New("event is archived")
	// ErrEventFull is returned when the event reached its capacity.
	ErrEventFull = errors.New("event is full")
	// ErrCancelled is returned for actions that need an active registration.
	ErrCancelled = errors.New("registration cancelled")

	errScanCodeTaken = errors.New("scan code already in use")
)

const registrationColumns = `r.id, r.participant_id, r.event_id, r.scan_code, r.status, r.registered_at, r.updated_at`

const detailColumns = registrationColumns + `,
	p.id, p.name, p.email, p.phone, p.document, p.company, p.position, p.created_at, p.updated_at,
	e.id, e.name, e.slug, e.description, e.location, e.starts_at, e.ends_at, e.capacity, e.archived_at`

const detailFrom = ` FROM registrations r
	JOIN participants p ON p.id = r.participant_id
	JOIN events e ON e.id = r.event_id`

// Repository handles registration persistence. It implements
// attendance.RegistrationStore on either the pool or a transaction.
type Repository struct {
	db database.DBTX
}

// NewRepository creates a registrations repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	var status string
	err := row.Scan(&reg.ID, &reg.ParticipantID, &reg.EventID, &reg.ScanCode, &status, &reg.RegisteredAt, &reg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	reg.Status = models.RegistrationStatus(status)
	return &reg, nil
}

func scanDetail(row pgx.Row) (*models.RegistrationDetail, error) {
	var d models.RegistrationDetail
	var status string
	p, e := &d.Participant, &d.Event
	err := row.Scan(&d.ID, &d.ParticipantID, &d.EventID, &d.ScanCode, &status, &d.RegisteredAt, &d.UpdatedAt,
		&p.ID, &p.Name, &p.Email, &p.Phone, &p.Document, &p.Company, &p.Position, &p.CreatedAt, &p.UpdatedAt,
		&e.ID, &e.Name, &e.Slug, &e.Description, &e.Location, &e.StartsAt, &e.EndsAt, &e.Capacity, &e.ArchivedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Status = models.RegistrationStatus(status)
	return &d, nil
}

// FindByScanCode returns the registration carrying code, or (nil, nil) when the code is unknown.
func (r *Repository) FindByScanCode(ctx context.Context, code string) (*models.RegistrationDetail, error) {
	d, err := scanDetail(r.db.QueryRow(ctx, `SELECT `+detailColumns+detailFrom+` WHERE r.scan_code = $1`, code))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return d, err
}

// GetDetail returns a registration with its participant and event.
func (r *Repository) GetDetail(ctx context.Context, id uuid.UUID) (*models.RegistrationDetail, error) {
	return scanDetail(r.db.QueryRow(ctx, `SELECT `+detailColumns+detailFrom+` WHERE r.id = $1`, id))
}

// SetStatus updates a registration's status.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, status models.RegistrationStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE registrations SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CheckEnrollable verifies the participant exists and the event accepts registrations.
func (r *Repository) CheckEnrollable(ctx context.Context, participantID, eventID uuid.UUID) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM participants WHERE id = $1)`, participantID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrParticipantNotFound
	}

	const q = `SELECT e.archived_at IS NOT NULL, e.capacity,
			(SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id AND r.status <> 'CANCELLED')
		FROM events e WHERE e.id = $1`
	var archived bool
	var capacity *int
	var active int
	err := r.db.QueryRow(ctx, q, eventID).Scan(&archived, &capacity, &active)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrEventNotFound
	}
	if err != nil {
		return err
	}
	if archived {
		return ErrEventArchived
	}
	if capacity != nil && active >= *capacity {
		return ErrEventFull
	}
	return nil
}

// FindByParticipantEvent returns the registration of a participant in an event.
func (r *Repository) FindByParticipantEvent(ctx context.Context, participantID, eventID uuid.UUID) (*models.Registration, error) {
	q := `SELECT ` + registrationColumns + ` FROM registrations r WHERE r.participant_id = $1 AND r.event_id = $2`
	return scanRegistration(r.db.QueryRow(ctx, q, participantID, eventID))
}

// Create inserts a CONFIRMED registration.
func (r *Repository) Create(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (participant_id, event_id, scan_code, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, registered_at, updated_at`
	if reg.Status == "" {
		reg.Status = models.RegistrationConfirmed
	}
	err := r.db.QueryRow(ctx, q, reg.ParticipantID, reg.EventID, reg.ScanCode, string(reg.Status)).
		Scan(&reg.ID, &reg.RegisteredAt, &reg.UpdatedAt)
	switch {
	case database.IsUniqueViolation(err, "registrations_participant_event_key"):
		return ErrAlreadyRegistered
	case database.IsUniqueViolation(err, "registrations_scan_code_key"):
		return fmt.Errorf("%w: %s", errScanCodeTaken, reg.ScanCode)
	}
	return err
}

// Reactivate moves a CANCELLED registration back to CONFIRMED, keeping its scan code.
func (r *Repository) Reactivate(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	q := `UPDATE registrations r SET status = 'CONFIRMED', updated_at = NOW()
		WHERE r.id = $1 AND r.status = 'CANCELLED'
		RETURNING ` + registrationColumns
	reg, err := scanRegistration(r.db.QueryRow(ctx, q, id))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrAlreadyRegistered
	}
	return reg, err
}

// Cancel marks the participant's registration in the event CANCELLED. Rows are never deleted.
func (r *Repository) Cancel(ctx context.Context, participantID, eventID uuid.UUID) (*models.Registration, error) {
	q := `UPDATE registrations r SET status = 'CANCELLED', updated_at = NOW()
		WHERE r.participant_id = $1 AND r.event_id = $2
		RETURNING ` + registrationColumns
	return scanRegistration(r.db.QueryRow(ctx, q, participantID, eventID))
}

// ListByEvent returns an event's registrations with participant and event, ordered by participant name.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.RegistrationDetail, error) {
	rows, err := r.db.Query(ctx, `SELECT `+detailColumns+detailFrom+` WHERE r.event_id = $1 ORDER BY p.name, p.email`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.RegistrationDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *d)
	}
	return list, rows.Err()
}

// CountActive returns the number of registrations that are not cancelled.
func (r *Repository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM registrations WHERE status <> 'CANCELLED'`).Scan(&n)
	return n, err
}
