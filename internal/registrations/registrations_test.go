package registrations

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eventpass/checkin-backend/internal/models"
	"github.com/eventpass/checkin-backend/pkg/queue"
)

var scanCodePattern = regexp.MustCompile(`^QR-\d+-[0-9a-z]{9}$`)

func TestNewScanCode(t *testing.T) {
	now := time.UnixMilli(1767225600123)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := NewScanCode(now)
		require.NoError(t, err)
		assert.Regexp(t, scanCodePattern, code)
		assert.True(t, strings.HasPrefix(code, "QR-1767225600123-"))
		assert.False(t, seen[code], "duplicate %s", code)
		seen[code] = true
	}
}

func TestWhatsAppLink(t *testing.T) {
	link, err := WhatsAppLink("(11) 98888-7777", "55", "Hi & welcome")
	require.NoError(t, err)
	assert.Equal(t, "https://wa.me/5511988887777?text=Hi+%26+welcome", link)

	link, err = WhatsAppLink("+1 415 555 0100 22", "55", "x")
	require.NoError(t, err)
	assert.Equal(t, "https://wa.me/1415555010022?text=x", link)

	_, err = WhatsAppLink("", "55", "x")
	assert.ErrorIs(t, err, ErrNoPhone)
	_, err = WhatsAppLink("n/a", "55", "x")
	assert.ErrorIs(t, err, ErrNoPhone)
}

func TestQRPageURL(t *testing.T) {
	assert.Equal(t, "https://checkin.example.com/qrcode/QR-1-abc", QRPageURL("https://checkin.example.com", "QR-1-abc"))
}

type memRegs struct {
	regs        map[uuid.UUID]*models.RegistrationDetail
	collisions  int
	enrollErr   error
	createCalls int
}

func newMemRegs() *memRegs {
	return &memRegs{regs: map[uuid.UUID]*models.RegistrationDetail{}}
}

func (m *memRegs) add(status models.RegistrationStatus, phone string) *models.RegistrationDetail {
	d := &models.RegistrationDetail{Registration: models.Registration{
		ID: uuid.New(), ParticipantID: uuid.New(), EventID: uuid.New(),
		ScanCode: "QR-1-" + uuid.NewString()[:9], Status: status,
	}}
	d.Participant = models.Participant{ID: d.ParticipantID, Name: "Ana", Email: "ana@example.com", Phone: phone}
	d.Event = models.Event{ID: d.EventID, Name: "Tech Summit"}
	m.regs[d.ID] = d
	return d
}

func (m *memRegs) CheckEnrollable(context.Context, uuid.UUID, uuid.UUID) error { return m.enrollErr }

func (m *memRegs) FindByParticipantEvent(_ context.Context, pid, eid uuid.UUID) (*models.Registration, error) {
	for _, d := range m.regs {
		if d.ParticipantID == pid && d.EventID == eid {
			r := d.Registration
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRegs) Create(_ context.Context, reg *models.Registration) error {
	m.createCalls++
	if m.collisions > 0 {
		m.collisions--
		return fmt.Errorf("%w: %s", errScanCodeTaken, reg.ScanCode)
	}
	reg.ID = uuid.New()
	m.regs[reg.ID] = &models.RegistrationDetail{Registration: *reg}
	return nil
}

func (m *memRegs) Reactivate(_ context.Context, id uuid.UUID) (*models.Registration, error) {
	d := m.regs[id]
	if d.Status != models.RegistrationCancelled {
		return nil, ErrAlreadyRegistered
	}
	d.Status = models.RegistrationConfirmed
	r := d.Registration
	return &r, nil
}

func (m *memRegs) Cancel(_ context.Context, pid, eid uuid.UUID) (*models.Registration, error) {
	for _, d := range m.regs {
		if d.ParticipantID == pid && d.EventID == eid {
			d.Status = models.RegistrationCancelled
			r := d.Registration
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRegs) GetDetail(_ context.Context, id uuid.UUID) (*models.RegistrationDetail, error) {
	d, ok := m.regs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return d, nil
}

func (m *memRegs) FindByScanCode(_ context.Context, code string) (*models.RegistrationDetail, error) {
	for _, d := range m.regs {
		if d.ScanCode == code {
			return d, nil
		}
	}
	return nil, nil
}

func (m *memRegs) ListByEvent(context.Context, uuid.UUID) ([]models.RegistrationDetail, error) {
	return nil, nil
}

func TestEnrollCreatesReactivatesAndConflicts(t *testing.T) {
	store := newMemRegs()
	svc := NewService(store, nil)
	ctx := context.Background()
	pid, eid := uuid.New(), uuid.New()

	reg, reactivated, err := svc.Enroll(ctx, pid, eid)
	require.NoError(t, err)
	assert.False(t, reactivated)
	assert.Equal(t, models.RegistrationConfirmed, reg.Status)
	assert.Regexp(t, scanCodePattern, reg.ScanCode)
	code := reg.ScanCode

	_, _, err = svc.Enroll(ctx, pid, eid)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	_, err = svc.Cancel(ctx, pid, eid)
	require.NoError(t, err)

	again, reactivated, err := svc.Enroll(ctx, pid, eid)
	require.NoError(t, err)
	assert.True(t, reactivated)
	assert.Equal(t, reg.ID, again.ID)
	assert.Equal(t, code, again.ScanCode)
	assert.Equal(t, models.RegistrationConfirmed, again.Status)
}

func TestEnrollRetriesScanCodeCollision(t *testing.T) {
	store := newMemRegs()
	store.collisions = 2
	_, _, err := NewService(store, nil).Enroll(context.Background(), uuid.New(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 3, store.createCalls)

	store = newMemRegs()
	store.collisions = maxCodeAttempts
	_, _, err = NewService(store, nil).Enroll(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, errScanCodeTaken)
}

func TestEnrollPropagatesEnrollability(t *testing.T) {
	store := newMemRegs()
	store.enrollErr = ErrEventFull
	_, _, err := NewService(store, nil).Enroll(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrEventFull)
	assert.Zero(t, store.createCalls)
}

type memEmailLogs struct {
	created []*models.EmailLog
	failed  []uuid.UUID
}

func (m *memEmailLogs) Create(_ context.Context, el *models.EmailLog) error {
	el.ID = uuid.New()
	el.Status = models.EmailLogStatusPending
	m.created = append(m.created, el)
	return nil
}

func (m *memEmailLogs) MarkFailed(_ context.Context, id uuid.UUID, _ string) error {
	m.failed = append(m.failed, id)
	return nil
}

type memJobs struct {
	payloads []queue.QRCodeEmailPayload
	err      error
}

func (m *memJobs) EnqueueQRCodeEmail(_ context.Context, p queue.QRCodeEmailPayload) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.payloads = append(m.payloads, p)
	return "job-1", nil
}

func newRegRouter(store *memRegs, logs *memEmailLogs, jobs EmailEnqueuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(NewService(store, nil), store, nil, logs, jobs, Links{PublicBaseURL: "https://checkin.example.com", DefaultCountryCode: "55"}, zap.NewNop())
	r := gin.New()
	r.POST("/participants/:id/registrations", h.Enroll)
	r.GET("/registrations/:id/qrcode.png", h.QRCodePNG)
	r.POST("/registrations/:id/qrcode/publish", h.PublishQRCode)
	r.POST("/registrations/:id/send-email", h.SendEmail)
	r.GET("/registrations/:id/whatsapp-link", h.WhatsAppLink)
	r.GET("/public/qrcode/:code", h.PublicQRCode)
	return r
}

func serve(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestEnrollHandlerStatuses(t *testing.T) {
	store := newMemRegs()
	r := newRegRouter(store, &memEmailLogs{}, &memJobs{})
	pid, eid := uuid.NewString(), uuid.NewString()

	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/participants/"+pid+"/registrations", `{"event_id":"`+eid+`"}`).Code)
	assert.Equal(t, http.StatusConflict, serve(r, http.MethodPost, "/participants/"+pid+"/registrations", `{"event_id":"`+eid+`"}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/participants/"+pid+"/registrations", `{"event_id":"nope"}`).Code)

	store.enrollErr = ErrEventNotFound
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodPost, "/participants/"+pid+"/registrations", `{"event_id":"`+uuid.NewString()+`"}`).Code)
}

func TestQRCodePNG(t *testing.T) {
	store := newMemRegs()
	d := store.add(models.RegistrationConfirmed, "")
	r := newRegRouter(store, &memEmailLogs{}, &memJobs{})

	w := serve(r, http.MethodGet, "/registrations/"+d.ID.String()+"/qrcode.png?size=200", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "\x89PNG"))

	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/registrations/"+uuid.NewString()+"/qrcode.png", "").Code)
}

func TestPublicQRCodeHidesCancelled(t *testing.T) {
	store := newMemRegs()
	active := store.add(models.RegistrationConfirmed, "")
	cancelled := store.add(models.RegistrationCancelled, "")
	r := newRegRouter(store, &memEmailLogs{}, &memJobs{})

	w := serve(r, http.MethodGet, "/public/qrcode/"+active.ScanCode, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "data:image/png;base64,")
	assert.NotContains(t, w.Body.String(), "ana@example.com")

	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/public/qrcode/"+cancelled.ScanCode, "").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/public/qrcode/QR-unknown", "").Code)
}

func TestPublishWithoutStorage(t *testing.T) {
	store := newMemRegs()
	d := store.add(models.RegistrationConfirmed, "")
	r := newRegRouter(store, &memEmailLogs{}, &memJobs{})
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodPost, "/registrations/"+d.ID.String()+"/qrcode/publish", "").Code)
}

func TestSendEmail(t *testing.T) {
	store := newMemRegs()
	d := store.add(models.RegistrationConfirmed, "")
	cancelled := store.add(models.RegistrationCancelled, "")
	logs := &memEmailLogs{}
	jobs := &memJobs{}
	r := newRegRouter(store, logs, jobs)

	w := serve(r, http.MethodPost, "/registrations/"+d.ID.String()+"/send-email", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, logs.created, 1)
	require.Len(t, jobs.payloads, 1)
	assert.Equal(t, logs.created[0].ID, jobs.payloads[0].EmailLogID)
	assert.Equal(t, "ana@example.com", jobs.payloads[0].RecipientEmail)
	assert.Equal(t, models.EmailTypeQRCode, logs.created[0].EmailType)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodPost, "/registrations/"+cancelled.ID.String()+"/send-email", "").Code)

	jobs.err = errors.New("redis down")
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodPost, "/registrations/"+d.ID.String()+"/send-email", "").Code)
	assert.Len(t, logs.failed, 1)
}

func TestWhatsAppLinkHandler(t *testing.T) {
	store := newMemRegs()
	withPhone := store.add(models.RegistrationConfirmed, "11 98888-7777")
	noPhone := store.add(models.RegistrationConfirmed, "")
	r := newRegRouter(store, &memEmailLogs{}, &memJobs{})

	w := serve(r, http.MethodGet, "/registrations/"+withPhone.ID.String()+"/whatsapp-link", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://wa.me/5511988887777?text=")
	assert.Contains(t, w.Body.String(), "https://checkin.example.com/qrcode/"+withPhone.ScanCode)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/registrations/"+noPhone.ID.String()+"/whatsapp-link", "").Code)
}
