package registrations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventpass/checkin-backend/internal/models"
	"github.com/eventpass/checkin-backend/pkg/qrcode"
	"github.com/eventpass/checkin-backend/pkg/queue"
	"github.com/eventpass/checkin-backend/pkg/response"
	"github.com/eventpass/checkin-backend/pkg/storage"
)

// QRStore keeps rendered QR images in object storage.
type QRStore interface {
	PutQRCode(ctx context.Context, key string, png []byte) error
	PresignQRCode(ctx context.Context, key string) (string, error)
}

// EmailLogWriter records queued emails.
type EmailLogWriter interface {
	Create(ctx context.Context, el *models.EmailLog) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// EmailEnqueuer hands QR emails to the worker.
type EmailEnqueuer interface {
	EnqueueQRCodeEmail(ctx context.Context, p queue.QRCodeEmailPayload) (string, error)
}

// Links configures participant-facing links.
type Links struct {
	PublicBaseURL      string
	DefaultCountryCode string
}

// EnrollRequest is the body for POST /participants/:id/registrations.
type EnrollRequest struct {
	EventID string `json:"event_id" binding:"required,uuid"`
}

// PublicQRCode is the body of GET /public/qrcode/:code.
type PublicQRCode struct {
	ScanCode    string                    `json:"scan_code"`
	Status      models.RegistrationStatus `json:"status"`
	Participant struct {
		Name    string `json:"name"`
		Company string `json:"company,omitempty"`
	} `json:"participant"`
	Event struct {
		Name     string    `json:"name"`
		Location string    `json:"location,omitempty"`
		StartsAt time.Time `json:"starts_at"`
		EndsAt   time.Time `json:"ends_at"`
	} `json:"event"`
	QRCode string `json:"qr_code"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc    *Service
	store  Store
	qr     QRStore
	emails EmailLogWriter
	jobs   EmailEnqueuer
	links  Links
	logger *zap.Logger
}

// NewHandler creates a registrations handler. qr and jobs may be nil when S3
// or Redis is not configured; the matching endpoints then answer 503.
func NewHandler(svc *Service, store Store, qr QRStore, emails EmailLogWriter, jobs EmailEnqueuer, links Links, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, store: store, qr: qr, emails: emails, jobs: jobs, links: links, logger: logger}
}

// Enroll handles POST /participants/:id/registrations (GESTOR+).
func (h *Handler) Enroll(c *gin.Context) {
	participantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return
	}
	var req EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	eventID := uuid.MustParse(req.EventID)

	reg, reactivated, err := h.svc.Enroll(c.Request.Context(), participantID, eventID)
	switch {
	case err == nil:
	case errors.Is(err, ErrParticipantNotFound), errors.Is(err, ErrEventNotFound):
		response.NotFound(c, err.Error())
		return
	case errors.Is(err, ErrAlreadyRegistered):
		response.Conflict(c, err.Error())
		return
	case errors.Is(err, ErrEventArchived), errors.Is(err, ErrEventFull):
		response.BadRequest(c, err.Error())
		return
	default:
		h.logger.Error("enroll failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to register participant")
		return
	}
	if reactivated {
		response.OKMessage(c, "registration reactivated", reg)
		return
	}
	response.Created(c, reg)
}

// Cancel handles DELETE /participants/:id/registrations/:eventId (GESTOR+).
func (h *Handler) Cancel(c *gin.Context) {
	participantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid participant id")
		return
	}
	eventID, err := uuid.Parse(c.Param("eventId"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	reg, err := h.svc.Cancel(c.Request.Context(), participantID, eventID)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "registration not found")
		return
	}
	if err != nil {
		h.logger.Error("cancel registration failed", zap.Error(err))
		response.Internal(c, "failed to cancel registration")
		return
	}
	response.OKMessage(c, "registration cancelled", reg)
}

// ListByEvent handles GET /events/:id/registrations.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	list, err := h.store.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("list registrations failed", zap.Error(err))
		response.Internal(c, "failed to list registrations")
		return
	}
	response.OK(c, list)
}

// QRCodePNG handles GET /registrations/:id/qrcode.png. ?size= picks the edge in pixels.
func (h *Handler) QRCodePNG(c *gin.Context) {
	d, ok := h.loadDetail(c)
	if !ok {
		return
	}
	png, err := qrcode.PNG(d.ScanCode, qrSize(c.Query("size")))
	if err != nil {
		h.logger.Error("render qr failed", zap.Error(err))
		response.Internal(c, "failed to render qr code")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s.png"`, d.ScanCode))
	c.Data(http.StatusOK, "image/png", png)
}

// PublicQRCode handles GET /public/qrcode/:code. Cancelled registrations are not shown.
func (h *Handler) PublicQRCode(c *gin.Context) {
	d, err := h.store.FindByScanCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.logger.Error("public qr lookup failed", zap.Error(err))
		response.Internal(c, "failed to load qr code")
		return
	}
	if d == nil || d.Status == models.RegistrationCancelled {
		response.NotFound(c, "qr code not found")
		return
	}
	dataURL, err := qrcode.DataURL(d.ScanCode, qrcode.DefaultSize)
	if err != nil {
		h.logger.Error("render qr failed", zap.Error(err))
		response.Internal(c, "failed to render qr code")
		return
	}
	var out PublicQRCode
	out.ScanCode = d.ScanCode
	out.Status = d.Status
	out.Participant.Name = d.Participant.Name
	out.Participant.Company = d.Participant.Company
	out.Event.Name = d.Event.Name
	out.Event.Location = d.Event.Location
	out.Event.StartsAt = d.Event.StartsAt
	out.Event.EndsAt = d.Event.EndsAt
	out.QRCode = dataURL
	response.OK(c, out)
}

// PublishQRCode handles POST /registrations/:id/qrcode/publish. Uploads the PNG to
// S3 and returns a presigned download URL.
func (h *Handler) PublishQRCode(c *gin.Context) {
	if h.qr == nil {
		response.ServiceUnavailable(c, "object storage not configured")
		return
	}
	d, ok := h.loadDetail(c)
	if !ok {
		return
	}
	png, err := qrcode.PNG(d.ScanCode, qrcode.DefaultSize)
	if err != nil {
		response.Internal(c, "failed to render qr code")
		return
	}
	ctx := c.Request.Context()
	key := storage.QRCodeKey(d.EventID.String(), d.ID.String())
	if err := h.qr.PutQRCode(ctx, key, png); err != nil {
		h.logger.Error("upload qr failed", zap.Error(err), zap.String("key", key))
		response.ServiceUnavailable(c, "failed to upload qr code")
		return
	}
	url, err := h.qr.PresignQRCode(ctx, key)
	if err != nil {
		h.logger.Error("presign qr failed", zap.Error(err), zap.String("key", key))
		response.ServiceUnavailable(c, "failed to sign qr code url")
		return
	}
	response.OK(c, gin.H{"key": key, "url": url})
}

// SendEmail handles POST /registrations/:id/send-email (GESTOR+). The email is
// delivered by the worker.
func (h *Handler) SendEmail(c *gin.Context) {
	if h.jobs == nil {
		response.ServiceUnavailable(c, "email queue not configured")
		return
	}
	d, ok := h.loadDetail(c)
	if !ok {
		return
	}
	if d.Status == models.RegistrationCancelled {
		response.BadRequest(c, ErrCancelled.Error())
		return
	}
	ctx := c.Request.Context()
	eventID, regID := d.EventID, d.ID
	el := &models.EmailLog{
		EventID:        &eventID,
		RegistrationID: &regID,
		EmailType:      models.EmailTypeQRCode,
		RecipientEmail: d.Participant.Email,
		Subject:        "Your check-in QR code for " + d.Event.Name,
	}
	if err := h.emails.Create(ctx, el); err != nil {
		h.logger.Error("create email log failed", zap.Error(err))
		response.Internal(c, "failed to queue email")
		return
	}
	jobID, err := h.jobs.EnqueueQRCodeEmail(ctx, queue.QRCodeEmailPayload{
		EmailLogID:     el.ID,
		RegistrationID: d.ID,
		EventID:        d.EventID,
		RecipientEmail: d.Participant.Email,
		RecipientName:  d.Participant.Name,
		Subject:        el.Subject,
	})
	if err != nil {
		h.logger.Error("enqueue email failed", zap.Error(err), zap.String("registration_id", d.ID.String()))
		_ = h.emails.MarkFailed(ctx, el.ID, "enqueue failed: "+err.Error())
		response.ServiceUnavailable(c, "failed to queue email")
		return
	}
	c.JSON(http.StatusAccepted, response.Body{Success: true, Message: "email queued", Data: gin.H{
		"job_id":       jobID,
		"email_log_id": el.ID,
	}})
}

// WhatsAppLink handles GET /registrations/:id/whatsapp-link.
func (h *Handler) WhatsAppLink(c *gin.Context) {
	d, ok := h.loadDetail(c)
	if !ok {
		return
	}
	if d.Status == models.RegistrationCancelled {
		response.BadRequest(c, ErrCancelled.Error())
		return
	}
	page := QRPageURL(h.links.PublicBaseURL, d.ScanCode)
	msg := fmt.Sprintf("Hello %s! Here is your check-in QR code for %s: %s", d.Participant.Name, d.Event.Name, page)
	link, err := WhatsAppLink(d.Participant.Phone, h.links.DefaultCountryCode, msg)
	if errors.Is(err, ErrNoPhone) {
		response.BadRequest(c, err.Error())
		return
	}
	if err != nil {
		response.Internal(c, "failed to build link")
		return
	}
	response.OK(c, gin.H{"url": link, "qr_page": page})
}

func (h *Handler) loadDetail(c *gin.Context) (*models.RegistrationDetail, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return nil, false
	}
	d, err := h.store.GetDetail(c.Request.Context(), id)
	if errors.Is(err, ErrNotFound) {
		response.NotFound(c, "registration not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("get registration failed", zap.Error(err))
		response.Internal(c, "failed to load registration")
		return nil, false
	}
	return d, true
}

func qrSize(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return qrcode.DefaultSize
	}
	if n < 128 {
		return 128
	}
	if n > 1024 {
		return 1024
	}
	return n
}
