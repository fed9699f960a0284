package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/learnx/live-backend/internal/models"
	"github.com/learnx/live-backend/internal/recordings"
	"github.com/learnx/live-backend/pkg/queue"
	"github.com/learnx/live-backend/pkg/storage"
)

// Uploader stores recording files (implemented by storage.S3).
type Uploader interface {
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64, publicRead bool) (string, error)
	RecordingsBucket() string
}

// JobSource yields jobs and takes back failures (implemented by queue.Queue).
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// RecordingProcessor processes recording upload jobs: local capture file -> S3 -> DB.
type RecordingProcessor struct {
	recs    recordings.Store
	s3      Uploader
	jobs    JobSource
	backoff time.Duration
	logger  *zap.Logger
}

// NewRecordingProcessor creates a recording upload processor.
func NewRecordingProcessor(recs recordings.Store, s3 Uploader, jobs JobSource, logger *zap.Logger) *RecordingProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordingProcessor{recs: recs, s3: s3, jobs: jobs, backoff: queue.RetryBackoff, logger: logger}
}

// SetBackoff overrides the delay after a failed job.
func (p *RecordingProcessor) SetBackoff(d time.Duration) { p.backoff = d }

// Process executes one recording upload job.
func (p *RecordingProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeRecordingUpload {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.RecordingUploadPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	rec, err := p.recs.GetByID(ctx, payload.RecordingID)
	if err != nil {
		return fmt.Errorf("load recording %s: %w", payload.RecordingID, err)
	}
	if rec.Status == models.RecordingStatusCompleted {
		p.logger.Info("recording already completed", zap.String("recording_id", rec.ID.String()))
		return nil
	}

	f, err := os.Open(payload.LocalPath)
	if err != nil {
		return fmt.Errorf("open recording file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat recording file: %w", err)
	}

	key := storage.RecordingKey(payload.SessionID.String(), payload.RecordingID.String())
	s3URL, err := p.s3.Upload(ctx, p.s3.RecordingsBucket(), key, "video/webm", f, info.Size(), false)
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	if err := p.recs.UpdateS3Result(ctx, payload.RecordingID, s3URL, key, info.Size()); err != nil {
		return fmt.Errorf("update db: %w", err)
	}
	if err := os.Remove(payload.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("remove local recording failed", zap.String("path", payload.LocalPath), zap.Error(err))
	}

	p.logger.Info("recording upload completed", zap.String("recording_id", payload.RecordingID.String()), zap.String("s3_key", key))
	return nil
}

// fail retries the job, marking the recording failed once it lands in the DLQ.
func (p *RecordingProcessor) fail(ctx context.Context, job *queue.Job) {
	if err := p.jobs.Retry(ctx, job); err != nil {
		p.logger.Error("retry enqueue failed", zap.Error(err))
		return
	}
	if job.Attempt < queue.MaxRetries || job.Type != queue.JobTypeRecordingUpload {
		return
	}
	var payload queue.RecordingUploadPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return
	}
	if err := p.recs.UpdateStatus(ctx, payload.RecordingID, models.RecordingStatusFailed); err != nil {
		p.logger.Warn("mark recording failed", zap.Error(err))
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *RecordingProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("recording worker stopping")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			p.fail(ctx, job)
			p.sleep(ctx)
		}
	}
}

func (p *RecordingProcessor) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.backoff):
	}
}
