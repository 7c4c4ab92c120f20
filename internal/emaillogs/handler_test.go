package emaillogs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/eventpass/checkin-backend/internal/models"
)

type stubLister struct {
	logs []*models.EmailLog
	err  error
}

func (s stubLister) ListByEvent(context.Context, uuid.UUID) ([]*models.EmailLog, error) {
	return s.logs, s.err
}

func get(h *Handler, target string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/events/:id/emails", h.ListByEvent)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestListByEvent(t *testing.T) {
	logs := []*models.EmailLog{{RecipientEmail: "ana@example.com", Status: models.EmailLogStatusSent}}
	w := get(NewHandler(stubLister{logs: logs}, zap.NewNop()), "/events/"+uuid.NewString()+"/emails")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ana@example.com")

	w = get(NewHandler(stubLister{}, zap.NewNop()), "/events/nope/emails")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get(NewHandler(stubLister{err: errors.New("down")}, zap.NewNop()), "/events/"+uuid.NewString()+"/emails")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
