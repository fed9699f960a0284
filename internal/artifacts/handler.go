package artifacts

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnx/live-backend/internal/middleware"
	"github.com/learnx/live-backend/internal/models"
	"github.com/learnx/live-backend/pkg/response"
	"github.com/learnx/live-backend/pkg/storage"
)

const (
	// maxSlides bounds the number of slide images in one upload.
	maxSlides      = 300
	cleanupTimeout = 30 * time.Second
)

// ObjectStore stores uploaded documents (implemented by storage.S3).
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64, publicRead bool) (string, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	ArtifactsBucket() string
}

// SessionLookup resolves the target session of an upload.
type SessionLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.LiveSession, error)
}

// UploadResponse is returned by POST /api/live/:sessionId/artifacts. Its fields feed share-pdf/share-ppt.
type UploadResponse struct {
	FileURL    string   `json:"fileUrl"`
	FileName   string   `json:"fileName"`
	Kind       string   `json:"kind"`
	TotalPages int      `json:"totalPages,omitempty"`
	Slides     []string `json:"slides"`
}

// Handler handles shared artifact uploads.
type Handler struct {
	store    ObjectStore
	sessions SessionLookup
	logger   *zap.Logger
}

// NewHandler creates an artifact upload handler. store may be nil when storage is not configured.
func NewHandler(store ObjectStore, sessions SessionLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, sessions: sessions, logger: logger}
}

// Upload handles POST /api/live/:sessionId/artifacts (session host only).
// Form fields: file (pdf/ppt/pptx), slides (rendered slide images, in order), totalPages (pdf),
// kind (optional, pdf or ppt; must match the file type).
func (h *Handler) Upload(c *gin.Context) {
	if h.store == nil {
		response.ServiceUnavailable(c, "storage not configured")
		return
	}
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	s, err := h.sessions.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		response.NotFound(c, "session not found")
		return
	}
	if userID := c.MustGet(middleware.ContextUserID).(uuid.UUID); userID != s.HostID {
		response.Forbidden(c, "only the session host can upload artifacts")
		return
	}
	if s.Status == models.SessionEnded {
		response.Conflict(c, "session has ended")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.BadRequest(c, "multipart form required")
		return
	}
	files := form.File["file"]
	if len(files) != 1 {
		response.BadRequest(c, "exactly one file is required")
		return
	}
	doc := files[0]
	contentType, ok := storage.DocumentContentType(doc.Filename)
	if !ok {
		response.BadRequest(c, "only pdf, ppt and pptx files are allowed")
		return
	}
	slides := form.File["slides"]
	if len(slides) > maxSlides {
		response.BadRequest(c, fmt.Sprintf("at most %d slides", maxSlides))
		return
	}
	for _, fh := range append([]*multipart.FileHeader{doc}, slides...) {
		if fh.Size > storage.MaxArtifactFileSize {
			response.TooLarge(c, fh.Filename+" exceeds the size limit")
			return
		}
		if fh != doc {
			if _, ok := storage.SlideImageContentType(fh.Filename); !ok {
				response.BadRequest(c, "slides must be jpg, png or webp images")
				return
			}
		}
	}

	kind := models.ArtifactPDF
	if contentType != storage.DocumentExtensions[".pdf"] {
		kind = models.ArtifactPPT
	}
	if raw := c.PostForm("kind"); raw != "" {
		requested, err := ParseKind(raw)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if requested != kind {
			response.BadRequest(c, fmt.Sprintf("%s does not match kind %s", doc.Filename, requested))
			return
		}
	}
	out := UploadResponse{FileName: doc.Filename, Kind: string(kind), Slides: []string{}}
	if kind == models.ArtifactPDF {
		if n, err := strconv.Atoi(c.PostForm("totalPages")); err == nil && n > 0 {
			out.TotalPages = n
		}
	}

	ctx := c.Request.Context()
	uploadID := uuid.New().String()
	var keys []string
	url, key, err := h.put(ctx, sessionID.String(), uploadID, doc, contentType)
	if err != nil {
		h.fail(c, sessionID, keys, err)
		return
	}
	keys = append(keys, key)
	out.FileURL = url
	for i, fh := range slides {
		ct, _ := storage.SlideImageContentType(fh.Filename)
		url, key, err := h.put(ctx, sessionID.String(), uploadID, fh, ct, fmt.Sprintf("slide-%03d", i+1))
		if err != nil {
			h.fail(c, sessionID, keys, err)
			return
		}
		keys = append(keys, key)
		out.Slides = append(out.Slides, url)
	}
	if kind == models.ArtifactPPT {
		out.TotalPages = len(out.Slides)
	}
	h.logger.Info("artifact uploaded",
		zap.String("session_id", sessionID.String()),
		zap.String("file", doc.Filename),
		zap.Int("slides", len(out.Slides)))
	response.Created(c, out)
}

// put uploads one form file. An optional prefix replaces the base name (slides are renamed by order).
func (h *Handler) put(ctx context.Context, sessionID, uploadID string, fh *multipart.FileHeader, contentType string, prefix ...string) (url, key string, err error) {
	f, err := fh.Open()
	if err != nil {
		return "", "", fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()
	name := fh.Filename
	if len(prefix) > 0 {
		name = prefix[0] + strings.ToLower(path.Ext(fh.Filename))
	}
	key = storage.ArtifactKey(sessionID, uploadID, name)
	url, err = h.store.Upload(ctx, h.store.ArtifactsBucket(), key, contentType, f, fh.Size, true)
	return url, key, err
}

// fail removes the objects already uploaded for this request and answers 500.
func (h *Handler) fail(c *gin.Context, sessionID uuid.UUID, uploaded []string, err error) {
	h.logger.Error("artifact upload failed", zap.String("session_id", sessionID.String()), zap.Error(err))
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), cleanupTimeout)
	defer cancel()
	for _, key := range uploaded {
		if err := h.store.DeleteObject(ctx, h.store.ArtifactsBucket(), key); err != nil {
			h.logger.Warn("artifact cleanup failed", zap.String("key", key), zap.Error(err))
		}
	}
	response.Internal(c, "failed to upload artifact")
}
