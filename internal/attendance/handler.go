package attendance

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnx/live-backend/pkg/response"
)

// Reader is the read side of the attendance log.
type Reader interface {
	List(ctx context.Context, sessionID uuid.UUID) ([]Entry, error)
	Summary(ctx context.Context, sessionID uuid.UUID) (*Summary, error)
}

// Handler serves GET /api/live/:sessionId/attendance.
type Handler struct {
	repo   Reader
	logger *zap.Logger
}

// NewHandler creates an attendance handler.
func NewHandler(repo Reader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// Get lists the stays of a session together with the watch time summary.
func (h *Handler) Get(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	ctx := c.Request.Context()
	list, err := h.repo.List(ctx, sessionID)
	if err != nil {
		h.logger.Error("list attendance failed", zap.Error(err))
		response.Internal(c, "failed to list attendance")
		return
	}
	summary, err := h.repo.Summary(ctx, sessionID)
	if err != nil {
		h.logger.Error("attendance summary failed", zap.Error(err))
		response.Internal(c, "failed to list attendance")
		return
	}
	if list == nil {
		list = []Entry{}
	}
	response.OK(c, gin.H{"attendees": list, "summary": summary})
}
