package events

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eventpass/checkin-backend/internal/models"
)

func TestArchiveCutoff(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	now := time.Date(2026, 5, 10, 15, 30, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 5, 10, 0, 0, 0, 0, loc), ArchiveCutoff(now))

	midnight := time.Date(2026, 5, 10, 0, 0, 0, 0, loc)
	assert.Equal(t, midnight, ArchiveCutoff(midnight))
}

type fakeArchiveRepo struct {
	cutoff time.Time
	n      int64
	err    error
}

func (f *fakeArchiveRepo) ArchiveEndedBefore(_ context.Context, cutoff, _ time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func TestArchiverRun(t *testing.T) {
	repo := &fakeArchiveRepo{n: 3}
	a := NewArchiver(repo, nil)
	a.now = func() time.Time { return time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC) }

	n, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC), repo.cutoff)

	repo.err = errors.New("db down")
	_, err = a.Run(context.Background())
	assert.Error(t, err)
}

type memEvents struct {
	events map[uuid.UUID]*models.Event
}

func (m *memEvents) Create(_ context.Context, e *models.Event) error {
	e.ID = uuid.New()
	m.events[e.ID] = e
	return nil
}

func (m *memEvents) GetByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memEvents) List(context.Context, bool) ([]models.Event, error) { return nil, nil }

func (m *memEvents) Update(_ context.Context, e *models.Event) error {
	m.events[e.ID] = e
	return nil
}

func (m *memEvents) Archive(_ context.Context, id uuid.UUID, at time.Time) error {
	e, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	e.ArchivedAt = &at
	return nil
}

func newEventRouter(store Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(store, NewArchiver(&fakeArchiveRepo{}, nil), zap.NewNop())
	r := gin.New()
	r.POST("/events", h.Create)
	r.PUT("/events/:id", h.Update)
	r.DELETE("/events/:id", h.Archive)
	r.POST("/events/archive", h.ArchiveEnded)
	return r
}

func send(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestCreateEventBuildsSlugAndValidatesDates(t *testing.T) {
	store := &memEvents{events: map[uuid.UUID]*models.Event{}}
	r := newEventRouter(store)

	w := send(r, http.MethodPost, "/events", `{"name":"Congresso de Inovação 2026","starts_at":"2026-05-10T09:00:00Z","ends_at":"2026-05-10T18:00:00Z","capacity":200}`)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, store.events, 1)
	for _, e := range store.events {
		assert.Equal(t, "congresso-de-inovacao-2026", e.Slug)
		require.NotNil(t, e.Capacity)
		assert.Equal(t, 200, *e.Capacity)
	}

	w = send(r, http.MethodPost, "/events", `{"name":"Backwards","starts_at":"2026-05-10T18:00:00Z","ends_at":"2026-05-10T09:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send(r, http.MethodPost, "/events", `{"name":"Bad date","starts_at":"10/05/2026","ends_at":"2026-05-10T09:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, store.events, 1)
}

func TestUpdateAndArchiveEvent(t *testing.T) {
	store := &memEvents{events: map[uuid.UUID]*models.Event{}}
	r := newEventRouter(store)
	id := uuid.New()
	store.events[id] = &models.Event{ID: id, Name: "Old"}

	w := send(r, http.MethodPut, "/events/"+id.String(), `{"name":"New Name","starts_at":"2026-05-10T09:00:00Z","ends_at":"2026-05-11T09:00:00Z"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "new-name", store.events[id].Slug)

	assert.Equal(t, http.StatusOK, send(r, http.MethodDelete, "/events/"+id.String(), "").Code)
	assert.NotNil(t, store.events[id].ArchivedAt)

	assert.Equal(t, http.StatusNotFound, send(r, http.MethodDelete, "/events/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusBadRequest, send(r, http.MethodDelete, "/events/xyz", "").Code)
}

func TestArchiveEndedEndpoint(t *testing.T) {
	r := newEventRouter(&memEvents{events: map[uuid.UUID]*models.Event{}})
	w := send(r, http.MethodPost, "/events/archive", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"archived":0`)
}
