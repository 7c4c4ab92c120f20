package participants

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventpass/checkin-backend/internal/models"
	"github.com/eventpass/checkin-backend/pkg/response"
)

// Store is the participant repository as seen by the handler.
type Store interface {
	Create(ctx context.Context, p *models.Participant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Participant, error)
	List(ctx context.Context, search string) ([]models.Participant, error)
	Update(ctx context.Context, p *models.Participant) error
	Registrations(ctx context.Context, participantID uuid.UUID) ([]HistoryRow, error)
}

// AttendanceLister loads attendance rows for a set of registrations.
type AttendanceLister interface {
	ListByRegistrations(ctx context.Context, registrationIDs []uuid.UUID) (map[uuid.UUID][]models.AttendanceEvent, error)
}

// ParticipantRequest is the body for POST /participants and PUT /participants/:id.
type ParticipantRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Document string `json:"document"`
	Company  string `json:"company"`
	Position string `json:"position"`
}

func (r *ParticipantRequest) apply(p *models.Participant) error {
	name := strings.TrimSpace(r.Name)
	if name == "" {
		return errors.New("name required")
	}
	p.Name = name
	p.Email = strings.ToLower(strings.TrimSpace(r.Email))
	p.Phone = strings.TrimSpace(r.Phone)
	p.Document = strings.TrimSpace(r.Document)
	p.Company = strings.TrimSpace(r.Company)
	p.Position = strings.TrimSpace(r.Position)
	return nil
}

// Handler handles participant HTTP endpoints.
type Handler struct {
	store      Store
	attendance AttendanceLister
	logger     *zap.Logger
}

// NewHandler creates a participant handler.
func NewHandler(store Store, attendance AttendanceLister, logger *zap.Logger) *Handler {
	return &Handler{store: store, attendance: attendance, logger: logger}
}

// Create handles POST /participants (GESTOR+).
func (h *Handler) Create(c *gin.Context) {
	var req ParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p := &models.Participant{}
	if err := req.apply(p); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	err := h.store.Create(c.Request.Context(), p)
	if errors.Is(err, ErrDuplicateEmail) {
		response.Conflict(c, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("create participant failed", zap.Error(err))
		response.Internal(c, "failed to create participant")
		return
	}
	response.Created(c, p)
}

// List handles GET /participants?search=.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context(), c.Query("search"))
	if err != nil {
		h.logger.Error("list participants failed", zap.Error(err))
		response.Internal(c, "failed to list participants")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /participants/:id.
func (h *Handler) GetByID(c *gin.Context) {
	p, ok := h.load(c)
	if !ok {
		return
	}
	response.OK(c, p)
}

// Update handles PUT /participants/:id (GESTOR+).
func (h *Handler) Update(c *gin.Context) {
	var req ParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p, ok := h.load(c)
	if !ok {
		return
	}
	if err := req.apply(p); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	err := h.store.Update(c.Request.Context(), p)
	if errors.Is(err, ErrDuplicateEmail) {
		response.Conflict(c, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("update participant failed", zap.Error(err))
		response.Internal(c, "failed to update participant")
		return
	}
	response.OK(c, p)
}

// History handles GET /participants/:id/history.
func (h *Handler) History(c *gin.Context) {
	p, ok := h.load(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	regs, err := h.store.Registrations(ctx, p.ID)
	if err != nil {
		h.logger.Error("participant registrations failed", zap.Error(err))
		response.Internal(c, "failed to load history")
		return
	}
	ids := make([]uuid.UUID, len(regs))
	for i, r := range regs {
		ids[i] = r.ID
	}
	attendance, err := h.attendance.ListByRegistrations(ctx, ids)
	if err != nil {
		h.logger.Error("participant attendance failed", zap.Error(err))
		response.Internal(c, "failed to load history")
		return
	}
	response.OK(c, BuildHistory(*p, regs, attendance))
}

func (h *Handler) load(c *gin.Context) (*models.Participant, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return nil, false
	}
	p, err := h.store.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "participant not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("get participant failed", zap.Error(err))
		response.Internal(c, "failed to load participant")
		return nil, false
	}
	return p, true
}
