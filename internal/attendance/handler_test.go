package attendance_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/learnx/live-backend/internal/attendance"
	"github.com/learnx/live-backend/internal/models"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) List(ctx context.Context, sessionID uuid.UUID) ([]attendance.Entry, error) {
	args := m.Called(ctx, sessionID)
	list, _ := args.Get(0).([]attendance.Entry)
	return list, args.Error(1)
}

func (m *mockReader) Summary(ctx context.Context, sessionID uuid.UUID) (*attendance.Summary, error) {
	args := m.Called(ctx, sessionID)
	s, _ := args.Get(0).(*attendance.Summary)
	return s, args.Error(1)
}

func serve(reader attendance.Reader, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/live/:sessionId/attendance", attendance.NewHandler(reader, nil).Get)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestGet_ListsStays(t *testing.T) {
	// Setup
	sessionID, userID := uuid.New(), uuid.New()
	joined := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	reader := &mockReader{}
	reader.On("List", mock.Anything, sessionID).Return([]attendance.Entry{
		{UserID: userID, Role: models.RoleStudent, JoinedAt: joined, WatchSeconds: 0},
	}, nil)
	reader.On("Summary", mock.Anything, sessionID).Return(&attendance.Summary{TotalWatchSeconds: 90, DistinctUsers: 1}, nil)

	// Execute
	w := serve(reader, "/live/"+sessionID.String()+"/attendance")

	// Assert
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), userID.String())
	assert.Contains(t, w.Body.String(), `"total_watch_seconds":90`)
	reader.AssertExpectations(t)
}

func TestGet_Errors(t *testing.T) {
	reader := &mockReader{}
	reader.On("List", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	assert.Equal(t, http.StatusBadRequest, serve(reader, "/live/abc/attendance").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(reader, "/live/"+uuid.NewString()+"/attendance").Code)
}
