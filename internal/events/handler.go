package events

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/eventpass/checkin-backend/internal/middleware"
	"github.com/eventpass/checkin-backend/internal/models"
	"github.com/eventpass/checkin-backend/pkg/response"
)

// Store is the event repository as seen by the handler.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	List(ctx context.Context, includeArchived bool) ([]models.Event, error)
	Update(ctx context.Context, e *models.Event) error
	Archive(ctx context.Context, id uuid.UUID, at time.Time) error
}

// EventRequest is the body for POST /events and PUT /events/:id.
type EventRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Location    string `json:"location"`
	StartsAt    string `json:"starts_at" binding:"required"`
	EndsAt      string `json:"ends_at" binding:"required"`
	Capacity    *int   `json:"capacity"`
}

func (r *EventRequest) apply(e *models.Event) error {
	startsAt, err := time.Parse(time.RFC3339, r.StartsAt)
	if err != nil {
		return errors.New("invalid starts_at")
	}
	endsAt, err := time.Parse(time.RFC3339, r.EndsAt)
	if err != nil {
		return errors.New("invalid ends_at")
	}
	if endsAt.Before(startsAt) {
		return errors.New("ends_at must not be before starts_at")
	}
	if r.Capacity != nil && *r.Capacity < 0 {
		return errors.New("capacity must not be negative")
	}
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return errors.New("name required")
	}
	e.Name = name
	e.Slug = slug.Make(name)
	e.Description = r.Description
	e.Location = r.Location
	e.StartsAt = startsAt
	e.EndsAt = endsAt
	e.Capacity = r.Capacity
	return nil
}

// Handler handles event HTTP endpoints.
type Handler struct {
	store    Store
	archiver *Archiver
	logger   *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(store Store, archiver *Archiver, logger *zap.Logger) *Handler {
	return &Handler{store: store, archiver: archiver, logger: logger}
}

// List handles GET /events. ?archived=1 includes archived events.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context(), c.Query("archived") == "1")
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, list)
}

// Create handles POST /events (GESTOR+).
func (h *Handler) Create(c *gin.Context) {
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	e := &models.Event{}
	if err := req.apply(e); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if uid, ok := middleware.UserID(c); ok {
		e.CreatedBy = &uid
	}
	if err := h.store.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, e)
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.store.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "event not found")
		return
	}
	if err != nil {
		h.logger.Error("get event failed", zap.Error(err))
		response.Internal(c, "failed to load event")
		return
	}
	response.OK(c, e)
}

// Update handles PUT /events/:id (GESTOR+).
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	e, err := h.store.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "event not found")
		return
	}
	if err != nil {
		h.logger.Error("get event failed", zap.Error(err))
		response.Internal(c, "failed to load event")
		return
	}
	if err := req.apply(e); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.store.Update(c.Request.Context(), e); err != nil {
		h.logger.Error("update event failed", zap.Error(err))
		response.Internal(c, "failed to update event")
		return
	}
	response.OK(c, e)
}

// Archive handles DELETE /events/:id (GESTOR+). Events are never hard-deleted.
func (h *Handler) Archive(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	err = h.store.Archive(c.Request.Context(), id, time.Now())
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "event not found")
		return
	}
	if err != nil {
		h.logger.Error("archive event failed", zap.Error(err))
		response.Internal(c, "failed to archive event")
		return
	}
	response.OKMessage(c, "event archived", gin.H{"id": id})
}

// ArchiveEnded handles POST /events/archive (GESTOR+).
func (h *Handler) ArchiveEnded(c *gin.Context) {
	n, err := h.archiver.Run(c.Request.Context())
	if err != nil {
		response.Internal(c, "failed to archive events")
		return
	}
	response.OK(c, gin.H{"archived": n})
}
