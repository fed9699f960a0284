package recordings

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnx/live-backend/internal/middleware"
	"github.com/learnx/live-backend/internal/models"
	"github.com/learnx/live-backend/pkg/response"
)

// SessionLookup resolves the session a recording belongs to.
type SessionLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.LiveSession, error)
}

// Presigner issues download URLs for uploaded recordings.
type Presigner interface {
	GeneratePresignedDownloadURL(ctx context.Context, bucket, key string, expires time.Duration) (string, error)
	PresignExpire() time.Duration
	RecordingsBucket() string
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	store    Store
	sessions SessionLookup
	s3       Presigner
	logger   *zap.Logger
}

// NewHandler creates a recordings handler. s3 may be nil when storage is not configured.
func NewHandler(store Store, sessions SessionLookup, s3 Presigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, sessions: sessions, s3: s3, logger: logger}
}

// ListBySession handles GET /api/live/:sessionId/recordings. Host or admin only.
func (h *Handler) ListBySession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	if !h.authorize(c, sessionID) {
		return
	}
	list, err := h.store.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err), zap.String("session_id", sessionID.String()))
		response.Internal(c, "failed to list recordings")
		return
	}
	if list == nil {
		list = []models.Recording{}
	}
	response.OK(c, list)
}

// GenerateDownloadURL handles GET /api/recordings/:recordingId/download-url.
func (h *Handler) GenerateDownloadURL(c *gin.Context) {
	recordingID, err := uuid.Parse(c.Param("recordingId"))
	if err != nil {
		response.BadRequest(c, "invalid recording id")
		return
	}
	rec, err := h.store.GetByID(c.Request.Context(), recordingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "recording not found")
			return
		}
		h.logger.Error("get recording failed", zap.Error(err))
		response.Internal(c, "failed to load recording")
		return
	}
	if !h.authorize(c, rec.SessionID) {
		return
	}
	if rec.Status != models.RecordingStatusCompleted || rec.S3Key == "" {
		response.BadRequest(c, "recording not ready for download")
		return
	}
	if h.s3 == nil {
		response.ServiceUnavailable(c, "storage not configured")
		return
	}
	expire := h.s3.PresignExpire()
	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), h.s3.RecordingsBucket(), rec.S3Key, expire)
	if err != nil {
		h.logger.Error("presign recording download failed", zap.Error(err), zap.String("recording_id", recordingID.String()))
		response.Internal(c, "failed to generate download URL")
		return
	}
	response.OK(c, gin.H{"download_url": url, "expires_in": int(expire.Seconds())})
}

// authorize allows the session host and admins.
func (h *Handler) authorize(c *gin.Context, sessionID uuid.UUID) bool {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if role, _ := c.Get(middleware.ContextUserRole); role == string(models.RoleAdmin) {
		return true
	}
	s, err := h.sessions.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		response.NotFound(c, "session not found")
		return false
	}
	if s.HostID != userID {
		response.Forbidden(c, "not authorized to access recordings")
		return false
	}
	return true
}
