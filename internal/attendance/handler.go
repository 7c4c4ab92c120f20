package attendance

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventpass/checkin-backend/internal/middleware"
	"github.com/eventpass/checkin-backend/pkg/response"
)

// Scanner is implemented by Ledger.
type Scanner interface {
	ProcessScan(ctx context.Context, code, actorID string) (*ScanResult, error)
}

// EventLister lists attendance rows of an event.
type EventLister interface {
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]EventRow, error)
}

// Publisher pushes accepted scans to live dashboards.
type Publisher interface {
	PublishScan(ctx context.Context, eventID uuid.UUID, result *ScanResult) error
}

// ScanRequest is the body for POST /scanner/checkin.
type ScanRequest struct {
	QRCode string `json:"qr_code"`
}

// Handler handles scanner HTTP endpoints.
type Handler struct {
	scanner   Scanner
	lister    EventLister
	publisher Publisher
	logger    *zap.Logger
}

// NewHandler creates an attendance handler. publisher may be nil.
func NewHandler(scanner Scanner, lister EventLister, publisher Publisher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{scanner: scanner, lister: lister, publisher: publisher, logger: logger}
}

// Scan handles POST /scanner/checkin.
func (h *Handler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	actor := c.GetString(middleware.ContextUserEmail)

	result, err := h.scanner.ProcessScan(c.Request.Context(), req.QRCode, actor)
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidInput):
		response.BadRequest(c, err.Error())
		return
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "participant not found")
		return
	case errors.Is(err, ErrRegistrationCancelled):
		response.BadRequest(c, "registration cancelled")
		return
	case errors.Is(err, ErrPersistence):
		response.ServiceUnavailable(c, "could not record scan, please scan again")
		return
	default:
		h.logger.Error("unexpected scan error", zap.Error(err))
		response.Internal(c, "failed to process scan")
		return
	}

	if h.publisher != nil {
		if err := h.publisher.PublishScan(c.Request.Context(), result.Event.ID, result); err != nil {
			h.logger.Warn("publish scan failed", zap.Error(err), zap.String("event_id", result.Event.ID.String()))
		}
	}
	response.OKMessage(c, result.Message, result)
}

// ListByEvent handles GET /events/:id/attendance.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.lister.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list attendance failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to list attendance")
		return
	}
	response.OK(c, gin.H{"attendance": list})
}
