package recordings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnx/live-backend/internal/models"
)

// ErrNotFound is returned when a recording id is unknown.
var ErrNotFound = errors.New("recording not found")

// Store is recording persistence.
type Store interface {
	Create(ctx context.Context, rec *models.Recording) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Recording, error)
	MarkStopped(ctx context.Context, id uuid.UUID, localPath string, duration int) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateS3Result(ctx context.Context, id uuid.UUID, s3URL, s3Key string, fileSize int64) error
}

// Repository handles live_recordings persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recordings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordingColumns = `id, session_id, started_by, local_path, s3_url, s3_key, duration, file_size, status, stopped_at, created_at, updated_at`

func scanRecording(row pgx.Row) (*models.Recording, error) {
	var rec models.Recording
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.StartedBy, &rec.LocalPath, &rec.S3URL, &rec.S3Key,
		&rec.Duration, &rec.FileSize, &rec.Status, &rec.StoppedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Create inserts a new recording in the recording state.
func (r *Repository) Create(ctx context.Context, rec *models.Recording) error {
	if rec.Status == "" {
		rec.Status = models.RecordingStatusRecording
	}
	const q = `INSERT INTO live_recordings (id, session_id, started_by, status)
		VALUES (gen_random_uuid(), $1, $2, $3)
		RETURNING id, created_at, updated_at`
	if err := r.pool.QueryRow(ctx, q, rec.SessionID, rec.StartedBy, rec.Status).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

// GetByID returns a recording by ID or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM live_recordings WHERE id = $1`
	return scanRecording(r.pool.QueryRow(ctx, q, id))
}

// ListBySession returns all recordings of a session, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Recording, error) {
	q := `SELECT ` + recordingColumns + ` FROM live_recordings WHERE session_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Recording
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rec)
	}
	return list, rows.Err()
}

// MarkStopped records the local output of a finished capture and moves it to processing.
func (r *Repository) MarkStopped(ctx context.Context, id uuid.UUID, localPath string, duration int) error {
	const q = `UPDATE live_recordings SET local_path = $2, duration = $3, status = $4, stopped_at = NOW(), updated_at = NOW()
		WHERE id = $1`
	return r.exec(ctx, q, id, localPath, duration, models.RecordingStatusProcessing)
}

// UpdateStatus sets recording status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	const q = `UPDATE live_recordings SET status = $2, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, q, id, status)
}

// UpdateS3Result stores the uploaded object and marks the recording completed.
func (r *Repository) UpdateS3Result(ctx context.Context, id uuid.UUID, s3URL, s3Key string, fileSize int64) error {
	const q = `UPDATE live_recordings SET s3_url = $2, s3_key = $3, file_size = $4, status = $5, local_path = '', updated_at = NOW()
		WHERE id = $1`
	return r.exec(ctx, q, id, s3URL, s3Key, fileSize, models.RecordingStatusCompleted)
}

func (r *Repository) exec(ctx context.Context, q string, args ...interface{}) error {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
