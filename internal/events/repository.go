package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/eventpass/checkin-backend/internal/models"
	"github.com/eventpass/checkin-backend/pkg/database"
)

// ErrNotFound is returned when no event matches.
var ErrNotFound = errors.New("event not found")

const eventColumns = `e.id, e.name, e.slug, e.description, e.location, e.starts_at, e.ends_at, e.capacity,
	e.created_by, e.archived_at, e.created_at, e.updated_at,
	(SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id AND r.status <> 'CANCELLED')`

// Repository handles event persistence.
type Repository struct {
	db database.DBTX
}

// NewRepository creates an event repository.
func NewRepository(db database.DBTX) *Repository {
	return &Repository{db: db}
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.Name, &e.Slug, &e.Description, &e.Location, &e.StartsAt, &e.EndsAt, &e.Capacity,
		&e.CreatedBy, &e.ArchivedAt, &e.CreatedAt, &e.UpdatedAt, &e.RegistrationCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	const q = `INSERT INTO events (name, slug, description, location, starts_at, ends_at, capacity, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, q, e.Name, e.Slug, e.Description, e.Location, e.StartsAt, e.EndsAt, e.Capacity, e.CreatedBy).
		Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID returns an event by ID, archived or not.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return scanEvent(r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id = $1`, id))
}

// List returns events ordered by start date, newest first. Archived events are
// skipped unless includeArchived is set.
func (r *Repository) List(ctx context.Context, includeArchived bool) ([]models.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events e`
	if !includeArchived {
		q += ` WHERE e.archived_at IS NULL`
	}
	rows, err := r.db.Query(ctx, q+` ORDER BY e.starts_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}

// Update overwrites the editable fields of an event.
func (r *Repository) Update(ctx context.Context, e *models.Event) error {
	const q = `UPDATE events SET name = $2, slug = $3, description = $4, location = $5,
			starts_at = $6, ends_at = $7, capacity = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err := r.db.QueryRow(ctx, q, e.ID, e.Name, e.Slug, e.Description, e.Location, e.StartsAt, e.EndsAt, e.Capacity).
		Scan(&e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Archive soft-deletes an event. Archiving twice keeps the first timestamp.
func (r *Repository) Archive(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE events SET archived_at = COALESCE(archived_at, $2), updated_at = NOW() WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ArchiveEndedBefore archives every active event whose ends_at is before cutoff.
func (r *Repository) ArchiveEndedBefore(ctx context.Context, cutoff, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE events SET archived_at = $2, updated_at = NOW()
		WHERE archived_at IS NULL AND ends_at < $1`, cutoff, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountActive returns the number of non-archived events.
func (r *Repository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM events WHERE archived_at IS NULL`).Scan(&n)
	return n, err
}
