package recordings

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnx/live-backend/internal/models"
	"github.com/learnx/live-backend/internal/recorder"
	"github.com/learnx/live-backend/pkg/queue"
)

// Capturer produces recording files for a session (implemented by recorder.Service).
type Capturer interface {
	StartRecording(ctx context.Context, sessionID, recordingID uuid.UUID) (string, error)
	StopRecording(sessionID uuid.UUID) (*recorder.Result, error)
	HasActiveRecording(sessionID uuid.UUID) bool
}

// UploadEnqueuer hands finished files to the worker.
type UploadEnqueuer interface {
	EnqueueRecordingUpload(ctx context.Context, payload queue.RecordingUploadPayload) error
}

// Service ties a capture to its database row and the upload job.
type Service struct {
	store    Store
	capturer Capturer
	jobs     UploadEnqueuer
	logger   *zap.Logger
}

// NewService creates a recording service.
func NewService(store Store, capturer Capturer, jobs UploadEnqueuer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, capturer: capturer, jobs: jobs, logger: logger}
}

// Start creates a recording row and starts capturing the session.
func (s *Service) Start(ctx context.Context, sessionID, startedBy uuid.UUID) (*models.Recording, error) {
	if s.capturer.HasActiveRecording(sessionID) {
		return nil, recorder.ErrAlreadyRecording
	}
	rec := &models.Recording{SessionID: sessionID, StartedBy: startedBy, Status: models.RecordingStatusRecording}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	path, err := s.capturer.StartRecording(ctx, sessionID, rec.ID)
	if err != nil {
		if uerr := s.store.UpdateStatus(ctx, rec.ID, models.RecordingStatusFailed); uerr != nil {
			s.logger.Warn("mark recording failed", zap.Error(uerr))
		}
		return nil, err
	}
	rec.LocalPath = path
	return rec, nil
}

// Stop ends the session's capture and enqueues the upload.
func (s *Service) Stop(ctx context.Context, sessionID uuid.UUID) (*models.Recording, error) {
	res, err := s.capturer.StopRecording(sessionID)
	if err != nil {
		return nil, err
	}
	duration := int(res.Duration.Seconds())
	if err := s.store.MarkStopped(ctx, res.RecordingID, res.OutputPath, duration); err != nil {
		return nil, fmt.Errorf("mark recording stopped: %w", err)
	}
	payload := queue.RecordingUploadPayload{
		RecordingID: res.RecordingID,
		SessionID:   sessionID,
		LocalPath:   res.OutputPath,
		Duration:    duration,
	}
	if err := s.jobs.EnqueueRecordingUpload(ctx, payload); err != nil {
		s.logger.Error("enqueue recording upload failed", zap.Error(err), zap.String("recording_id", res.RecordingID.String()))
		_ = s.store.UpdateStatus(ctx, res.RecordingID, models.RecordingStatusFailed)
		return nil, fmt.Errorf("enqueue upload: %w", err)
	}
	return s.store.GetByID(ctx, res.RecordingID)
}

// Active reports whether the session is being recorded.
func (s *Service) Active(sessionID uuid.UUID) bool {
	return s.capturer.HasActiveRecording(sessionID)
}
