package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/eventpass/checkin-backend/internal/models"
	"github.com/eventpass/checkin-backend/pkg/database"
)

const attendanceColumns = `id, registration_id, event_id, check_in_at, check_out_at, status, scanned_by, created_at`

// Repository handles attendance_events persistence. It implements AttendanceStore
// on either the pool or a transaction.
type Repository struct {
	db database.DBTX
}

// NewRepository creates an attendance repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

func scanAttendance(row pgx.Row) (*models.AttendanceEvent, error) {
	var ev models.AttendanceEvent
	var status string
	if err := row.Scan(&ev.ID, &ev.RegistrationID, &ev.EventID, &ev.CheckInAt, &ev.CheckOutAt, &status, &ev.ScannedBy, &ev.CreatedAt); err != nil {
		return nil, err
	}
	ev.Status = models.AttendanceStatus(status)
	return &ev, nil
}

// FindLatest returns the newest attendance row for a registration, or nil.
func (r *Repository) FindLatest(ctx context.Context, registrationID uuid.UUID) (*models.AttendanceEvent, error) {
	q := `SELECT ` + attendanceColumns + ` FROM attendance_events
		WHERE registration_id = $1
		ORDER BY check_in_at DESC, id DESC
		LIMIT 1`
	ev, err := scanAttendance(r.db.QueryRow(ctx, q, registrationID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ev, err
}

// Create inserts a check-in row.
func (r *Repository) Create(ctx context.Context, ev *models.AttendanceEvent) error {
	const q = `INSERT INTO attendance_events (registration_id, event_id, check_in_at, status, scanned_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`
	err := r.db.QueryRow(ctx, q, ev.RegistrationID, ev.EventID, ev.CheckInAt, string(ev.Status), ev.ScannedBy).
		Scan(&ev.ID, &ev.CreatedAt)
	if database.IsUniqueViolation(err, "attendance_events_one_open_key") {
		return fmt.Errorf("registration %s already has an open attendance: %w", ev.RegistrationID, err)
	}
	return err
}

// UpdateCheckout closes an open row.
func (r *Repository) UpdateCheckout(ctx context.Context, eventID int64, at time.Time) (*models.AttendanceEvent, error) {
	q := `UPDATE attendance_events SET check_out_at = $2, status = $3
		WHERE id = $1 AND check_out_at IS NULL
		RETURNING ` + attendanceColumns
	ev, err := scanAttendance(r.db.QueryRow(ctx, q, eventID, at, string(models.AttendanceCheckedOut)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("attendance %d is not open", eventID)
	}
	return ev, err
}

// EventRow is one line of GET /events/:id/attendance.
type EventRow struct {
	models.AttendanceEvent
	ParticipantName  string `json:"participant_name"`
	ParticipantEmail string `json:"participant_email"`
}

// ListByEvent returns all attendance rows of an event, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]EventRow, error) {
	const q = `SELECT a.id, a.registration_id, a.event_id, a.check_in_at, a.check_out_at, a.status, a.scanned_by, a.created_at,
			p.name, p.email
		FROM attendance_events a
		JOIN registrations r ON r.id = a.registration_id
		JOIN participants p ON p.id = r.participant_id
		WHERE a.event_id = $1
		ORDER BY a.check_in_at DESC, a.id DESC`
	rows, err := r.db.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []EventRow
	for rows.Next() {
		var row EventRow
		var status string
		if err := rows.Scan(&row.ID, &row.RegistrationID, &row.EventID, &row.CheckInAt, &row.CheckOutAt, &status, &row.ScannedBy, &row.CreatedAt,
			&row.ParticipantName, &row.ParticipantEmail); err != nil {
			return nil, err
		}
		row.Status = models.AttendanceStatus(status)
		list = append(list, row)
	}
	return list, rows.Err()
}

// ListByRegistrations returns rows for the given registrations, oldest first, grouped by registration.
func (r *Repository) ListByRegistrations(ctx context.Context, registrationIDs []uuid.UUID) (map[uuid.UUID][]models.AttendanceEvent, error) {
	out := make(map[uuid.UUID][]models.AttendanceEvent, len(registrationIDs))
	if len(registrationIDs) == 0 {
		return out, nil
	}
	q := `SELECT ` + attendanceColumns + ` FROM attendance_events
		WHERE registration_id = ANY($1)
		ORDER BY check_in_at ASC, id ASC`
	rows, err := r.db.Query(ctx, q, registrationIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		ev, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		out[ev.RegistrationID] = append(out[ev.RegistrationID], *ev)
	}
	return out, rows.Err()
}

// Count returns the number of check-ins ever recorded.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM attendance_events`).Scan(&n)
	return n, err
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PGTransactor implements Transactor with a read-committed transaction holding
// a row lock on the registration.
type PGTransactor struct {
	db     txBeginner
	stores func(db database.DBTX) Stores
}

// NewPGTransactor creates a transactor. stores binds the store implementations
// to the transaction handle.
func NewPGTransactor(db txBeginner, stores func(db database.DBTX) Stores) *PGTransactor {
	return &PGTransactor{db: db, stores: stores}
}

// WithinRegistration locks the registration row FOR UPDATE and runs fn in the same transaction.
func (t *PGTransactor) WithinRegistration(ctx context.Context, registrationID uuid.UUID, fn func(ctx context.Context, s Stores) error) error {
	return pgx.BeginTxFunc(ctx, t.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM registrations WHERE id = $1 FOR UPDATE`, registrationID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock registration: %w", err)
		}
		return fn(ctx, t.stores(tx))
	})
}
