package participants

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/eventpass/checkin-backend/internal/models"
	"github.com/eventpass/checkin-backend/pkg/database"
)

var (
	// ErrNotFound is returned when no participant matches.
	ErrNotFound = errors.New("participant not found")
	// ErrDuplicateEmail is returned when another participant already uses the email.
	ErrDuplicateEmail = errors.New("email already registered")
)

const participantColumns = `id, name, email, phone, document, company, position, created_at, updated_at`

// Repository handles participant persistence.
type Repository struct {
	db database.DBTX
}

// NewRepository creates a participant repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

func scanParticipant(row pgx.Row) (*models.Participant, error) {
	var p models.Participant
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Document, &p.Company, &p.Position, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a participant.
func (r *Repository) Create(ctx context.Context, p *models.Participant) error {
	const q = `INSERT INTO participants (name, email, phone, document, company, position)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, q, p.Name, p.Email, p.Phone, p.Document, p.Company, p.Position).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if database.IsUniqueViolation(err, "participants_email_key") {
		return ErrDuplicateEmail
	}
	return err
}

// GetByID returns a participant by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error) {
	return scanParticipant(r.db.QueryRow(ctx, `SELECT `+participantColumns+` FROM participants WHERE id = $1`, id))
}

// List returns participants ordered by name. search filters by name or email, case-insensitively.
func (r *Repository) List(ctx context.Context, search string) ([]models.Participant, error) {
	q := `SELECT ` + participantColumns + ` FROM participants`
	var args []any
	if s := strings.TrimSpace(search); s != "" {
		q += ` WHERE name ILIKE $1 OR email ILIKE $1`
		args = append(args, "%"+s+"%")
	}
	rows, err := r.db.Query(ctx, q+` ORDER BY name, email`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// Update overwrites a participant's fields.
func (r *Repository) Update(ctx context.Context, p *models.Participant) error {
	const q = `UPDATE participants SET name = $2, email = $3, phone = $4, document = $5, company = $6, position = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err := r.db.QueryRow(ctx, q, p.ID, p.Name, p.Email, p.Phone, p.Document, p.Company, p.Position).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if database.IsUniqueViolation(err, "participants_email_key") {
		return ErrDuplicateEmail
	}
	return err
}

// HistoryRow is a registration with the event it belongs to.
type HistoryRow struct {
	models.Registration
	Event models.Event `json:"event"`
}

// Registrations returns every registration of a participant, newest event first.
func (r *Repository) Registrations(ctx context.Context, participantID uuid.UUID) ([]HistoryRow, error) {
	const q = `SELECT r.id, r.participant_id, r.event_id, r.scan_code, r.status, r.registered_at, r.updated_at,
			e.id, e.name, e.slug, e.location, e.starts_at, e.ends_at, e.archived_at
		FROM registrations r
		JOIN events e ON e.id = r.event_id
		WHERE r.participant_id = $1
		ORDER BY e.starts_at DESC`
	rows, err := r.db.Query(ctx, q, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []HistoryRow
	for rows.Next() {
		var h HistoryRow
		var status string
		if err := rows.Scan(&h.ID, &h.ParticipantID, &h.EventID, &h.ScanCode, &status, &h.RegisteredAt, &h.UpdatedAt,
			&h.Event.ID, &h.Event.Name, &h.Event.Slug, &h.Event.Location, &h.Event.StartsAt, &h.Event.EndsAt, &h.Event.ArchivedAt); err != nil {
			return nil, err
		}
		h.Status = models.RegistrationStatus(status)
		list = append(list, h)
	}
	return list, rows.Err()
}
