package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueRecordings is the Redis list key for recording upload jobs.
	QueueRecordings = "live:worker:recordings"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "live:worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// dequeueTimeout bounds BLPOP so the worker loop notices shutdown.
	dequeueTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeRecordingUpload JobType = "recording_upload"
)

// RecordingUploadPayload asks the worker to move a finished local recording to S3.
type RecordingUploadPayload struct {
	RecordingID uuid.UUID `json:"recording_id"`
	SessionID   uuid.UUID `json:"session_id"`
	LocalPath   string    `json:"local_path"`
	Duration    int       `json:"duration"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewJob wraps payload in an envelope with a fresh id.
func NewJob(t JobType, payload interface{}) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client redis.UniversalClient, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

func (q *Queue) push(ctx context.Context, list string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, list, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	return nil
}

// EnqueueRecordingUpload enqueues a recording upload job.
func (q *Queue) EnqueueRecordingUpload(ctx context.Context, payload RecordingUploadPayload) error {
	job, err := NewJob(JobTypeRecordingUpload, payload)
	if err != nil {
		return err
	}
	if err := q.push(ctx, QueueRecordings, job); err != nil {
		return err
	}
	q.logger.Debug("enqueued recording upload job", zap.String("job_id", job.ID), zap.String("recording_id", payload.RecordingID.String()))
	return nil
}

// Dequeue waits for the next job. It returns a nil job when the wait times out
// or the raw entry is not a job.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, dequeueTimeout, QueueRecordings).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	if job.Attempt >= MaxRetries {
		if err := q.push(ctx, QueueDLQ, job); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.push(ctx, QueueRecordings, job); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
