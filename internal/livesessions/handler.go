package livesessions

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnx/live-backend/internal/middleware"
	"github.com/learnx/live-backend/internal/models"
	"github.com/learnx/live-backend/pkg/response"
)

// Registry exposes the running session state owned by the signaling hub.
type Registry interface {
	Snapshot(ctx context.Context, sessionID uuid.UUID) (*models.LiveSnapshot, bool)
	EndSession(ctx context.Context, sessionID uuid.UUID, reason string) (*models.LiveSession, error)
}

// CreateRequest is the body for POST /api/live.
type CreateRequest struct {
	ClassID         string `json:"classId" binding:"omitempty,uuid"`
	Title           string `json:"title" binding:"required,max=255"`
	Description     string `json:"description" binding:"max=2000"`
	MaxParticipants int    `json:"maxParticipants" binding:"omitempty,min=1,max=1000"`
	Start           bool   `json:"start"`
}

// DetailResponse is returned by GET /api/live/:sessionId.
type DetailResponse struct {
	Session *models.LiveSession  `json:"session"`
	Live    *models.LiveSnapshot `json:"live,omitempty"`
}

// Handler handles live session HTTP endpoints.
type Handler struct {
	store  Store
	live   Registry
	logger *zap.Logger
}

// NewHandler creates a live session handler.
func NewHandler(store Store, live Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, live: live, logger: logger}
}

// Create handles POST /api/live (teacher only). The caller becomes the host.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	s := &models.LiveSession{
		HostID:          userID,
		Title:           req.Title,
		Description:     req.Description,
		MaxParticipants: req.MaxParticipants,
		Status:          models.SessionCreated,
	}
	if s.MaxParticipants == 0 {
		s.MaxParticipants = 100
	}
	if req.ClassID != "" {
		classID, _ := uuid.Parse(req.ClassID)
		s.ClassID = &classID
	}
	if req.Start {
		s.Status = models.SessionActive
	}
	if err := h.store.Create(c.Request.Context(), s); err != nil {
		h.logger.Error("create live session failed", zap.Error(err))
		response.Internal(c, "failed to create session")
		return
	}
	response.Created(c, s)
}

// List handles GET /api/live?status=active.
func (h *Handler) List(c *gin.Context) {
	status := models.SessionStatus(c.DefaultQuery("status", string(models.SessionActive)))
	switch status {
	case models.SessionCreated, models.SessionActive, models.SessionEnded:
	default:
		response.BadRequest(c, "invalid status")
		return
	}
	list, err := h.store.ListByStatus(c.Request.Context(), status)
	if err != nil {
		h.logger.Error("list live sessions failed", zap.Error(err))
		response.Internal(c, "failed to list sessions")
		return
	}
	if list == nil {
		list = []models.LiveSession{}
	}
	response.OK(c, list)
}

// Get handles GET /api/live/:sessionId: stored metadata plus the running snapshot when live.
func (h *Handler) Get(c *gin.Context) {
	s, ok := h.load(c)
	if !ok {
		return
	}
	out := DetailResponse{Session: s}
	if h.live != nil {
		if snap, ok := h.live.Snapshot(c.Request.Context(), s.ID); ok {
			out.Live = snap
		}
	}
	response.OK(c, out)
}

// Participants handles GET /api/live/:sessionId/participants.
func (h *Handler) Participants(c *gin.Context) {
	s, ok := h.load(c)
	if !ok {
		return
	}
	participants := []models.Participant{}
	if h.live != nil {
		if snap, ok := h.live.Snapshot(c.Request.Context(), s.ID); ok {
			participants = snap.Participants
		}
	}
	response.OK(c, participants)
}

// Start handles POST /api/live/:sessionId/start (host only).
func (h *Handler) Start(c *gin.Context) {
	s, ok := h.loadAsHost(c)
	if !ok {
		return
	}
	updated, err := h.store.UpdateStatus(c.Request.Context(), s.ID, models.SessionActive)
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Info("live session started", zap.String("session_id", s.ID.String()))
	response.OK(c, updated)
}

// End handles POST /api/live/:sessionId/end (host only). Connected participants receive session-ended.
func (h *Handler) End(c *gin.Context) {
	s, ok := h.loadAsHost(c)
	if !ok {
		return
	}
	var (
		updated *models.LiveSession
		err     error
	)
	if h.live != nil {
		updated, err = h.live.EndSession(c.Request.Context(), s.ID, "ended by host")
	} else {
		updated, err = h.store.UpdateStatus(c.Request.Context(), s.ID, models.SessionEnded)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, updated)
}

func (h *Handler) load(c *gin.Context) (*models.LiveSession, bool) {
	id, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return nil, false
	}
	s, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) loadAsHost(c *gin.Context) (*models.LiveSession, bool) {
	s, ok := h.load(c)
	if !ok {
		return nil, false
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	if s.HostID != userID {
		response.Forbidden(c, "only the session host can do this")
		return nil, false
	}
	return s, true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "session not found")
	case errors.Is(err, ErrInvalidTransition):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error("live session request failed", zap.Error(err))
		response.Internal(c, "internal error")
	}
}
