package analytics

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventpass/checkin-backend/internal/events"
	"github.com/eventpass/checkin-backend/internal/models"
	"github.com/eventpass/checkin-backend/pkg/response"
)

// Counter returns a single total for the dashboard.
type Counter func(ctx context.Context) (int, error)

// Sources are the repositories the analytics endpoints read from.
type Sources struct {
	CountEvents        Counter
	CountRegistrations Counter
	CountCheckIns      Counter
	CountUsers         Counter

	GetEvent             func(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ListRegistrations    func(ctx context.Context, eventID uuid.UUID) ([]models.RegistrationDetail, error)
	ListAttendanceByRegs func(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]models.AttendanceEvent, error)
}

// DashboardStats is the body of GET /dashboard/stats.
type DashboardStats struct {
	TotalEvents        int `json:"total_events"`
	TotalRegistrations int `json:"total_registrations"`
	TotalCheckIns      int `json:"total_check_ins"`
	TotalUsers         int `json:"total_users"`
}

// Handler handles dashboard and report endpoints.
type Handler struct {
	src    Sources
	logger *zap.Logger
}

// NewHandler creates an analytics handler.
func NewHandler(src Sources, logger *zap.Logger) *Handler {
	return &Handler{src: src, logger: logger}
}

// Dashboard handles GET /dashboard/stats.
func (h *Handler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	var out DashboardStats
	for _, f := range []struct {
		dst   *int
		count Counter
		name  string
	}{
		{&out.TotalEvents, h.src.CountEvents, "events"},
		{&out.TotalRegistrations, h.src.CountRegistrations, "registrations"},
		{&out.TotalCheckIns, h.src.CountCheckIns, "check_ins"},
		{&out.TotalUsers, h.src.CountUsers, "users"},
	} {
		n, err := f.count(ctx)
		if err != nil {
			h.logger.Error("dashboard count failed", zap.String("count", f.name), zap.Error(err))
			response.Internal(c, "failed to load dashboard stats")
			return
		}
		*f.dst = n
	}
	response.OK(c, out)
}

// EventReport handles GET /events/:id/report (GESTOR+).
func (h *Handler) EventReport(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	ctx := c.Request.Context()

	event, err := h.src.GetEvent(ctx, id)
	if errors.Is(err, events.ErrNotFound) {
		response.NotFound(c, "event not found")
		return
	}
	if err != nil {
		h.logger.Error("report event lookup failed", zap.Error(err))
		response.Internal(c, "failed to build report")
		return
	}
	regs, err := h.src.ListRegistrations(ctx, id)
	if err != nil {
		h.logger.Error("report registrations failed", zap.Error(err))
		response.Internal(c, "failed to build report")
		return
	}
	ids := make([]uuid.UUID, len(regs))
	for i, r := range regs {
		ids[i] = r.ID
	}
	attendance, err := h.src.ListAttendanceByRegs(ctx, ids)
	if err != nil {
		h.logger.Error("report attendance failed", zap.Error(err))
		response.Internal(c, "failed to build report")
		return
	}
	response.OK(c, BuildReport(*event, regs, attendance))
}
