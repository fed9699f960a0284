package translation

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/learnx/live-backend/pkg/response"
)

// Handler serves the translation REST endpoints.
type Handler struct {
	engine         *Engine
	instantTimeout time.Duration
	logger         *zap.Logger
}

// NewHandler creates a translation handler.
func NewHandler(engine *Engine, instantTimeout time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, instantTimeout: instantTimeout, logger: logger}
}

// TranslateRequest is the body for POST /api/translate.
type TranslateRequest struct {
	Text string `json:"text" binding:"required"`
	From string `json:"from"`
	To   string `json:"to" binding:"required"`
}

// InstantRequest is the body for POST /api/translate/instant.
type InstantRequest struct {
	Text           string `json:"text" binding:"required"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage" binding:"required"`
}

// InstantResponse adds the observed latency to a Result.
type InstantResponse struct {
	Result
	LatencyMs int64 `json:"latency"`
}

// BatchRequest is the body for POST /api/translate/batch.
type BatchRequest struct {
	Text      string   `json:"text" binding:"required"`
	From      string   `json:"from"`
	Languages []string `json:"languages" binding:"required,min=1,max=10,dive,required"`
}

// BatchResponse maps target language to result.
type BatchResponse struct {
	Original     string            `json:"original"`
	From         string            `json:"from"`
	Translations map[string]Result `json:"translations"`
}

// Translate handles POST /api/translate.
func (h *Handler) Translate(c *gin.Context) {
	var req TranslateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	r, err := h.engine.Translate(c.Request.Context(), Request{Text: req.Text, Source: req.From, Target: req.To})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, r)
}

// Instant handles POST /api/translate/instant with the short real-time timeout.
func (h *Handler) Instant(c *gin.Context) {
	var req InstantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.SourceLanguage == "" {
		req.SourceLanguage = "en"
	}
	start := time.Now()
	r, err := h.engine.TranslateWithin(c.Request.Context(),
		Request{Text: req.Text, Source: req.SourceLanguage, Target: req.TargetLanguage}, h.instantTimeout)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, InstantResponse{Result: r, LatencyMs: time.Since(start).Milliseconds()})
}

// Batch handles POST /api/translate/batch.
func (h *Handler) Batch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	from := NormalizeLanguage(req.From)
	if from == "" {
		from = AutoDetect
	}
	out, err := h.engine.TranslateAll(c.Request.Context(), req.Text, from, req.Languages)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, BatchResponse{Original: req.Text, From: from, Translations: out})
}

// Languages handles GET /api/translate/languages.
func (h *Handler) Languages(c *gin.Context) {
	response.OK(c, gin.H{
		"languages": Languages(),
		"phrases":   Phrases(),
	})
}

// Stats handles GET /api/translate/stats.
func (h *Handler) Stats(c *gin.Context) {
	response.OK(c, h.engine.Stats())
}

// ClearCache handles DELETE /api/translate/cache (teacher only).
func (h *Handler) ClearCache(c *gin.Context) {
	n := h.engine.ClearCache()
	response.OK(c, gin.H{"cleared": n})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrEmptyText), errors.Is(err, ErrTextTooLong), errors.Is(err, ErrUnsupportedLanguage):
		response.BadRequest(c, err.Error())
	default:
		h.logger.Warn("translation request failed", zap.Error(err))
		response.ServiceUnavailable(c, "translation unavailable")
	}
}
