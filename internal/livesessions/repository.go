package livesessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnx/live-backend/internal/models"
)

var (
	// ErrNotFound is returned when a session id is unknown.
	ErrNotFound = errors.New("live session not found")
	// ErrInvalidTransition is returned when a status change breaks created -> active -> ended.
	ErrInvalidTransition = errors.New("invalid session status transition")
)

// Store is the session metadata persistence used by handlers and the signaling hub.
type Store interface {
	Create(ctx context.Context, s *models.LiveSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.LiveSession, error)
	ListByStatus(ctx context.Context, status models.SessionStatus) ([]models.LiveSession, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) (*models.LiveSession, error)
	SetRecording(ctx context.Context, id uuid.UUID, enabled bool) error
	SetCaptions(ctx context.Context, id uuid.UUID, enabled bool, language string) error
}

// Repository handles live_sessions persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a live session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sessionColumns = `id, class_id, host_id, title, description, max_participants, status,
	recording_enabled, captions_enabled, caption_language, started_at, ended_at, created_at, updated_at`

func scanSession(row pgx.Row) (*models.LiveSession, error) {
	var s models.LiveSession
	err := row.Scan(&s.ID, &s.ClassID, &s.HostID, &s.Title, &s.Description, &s.MaxParticipants, &s.Status,
		&s.RecordingEnabled, &s.CaptionsEnabled, &s.CaptionLanguage, &s.StartedAt, &s.EndedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Create inserts a new session. Status defaults to created; an active status also stamps started_at.
func (r *Repository) Create(ctx context.Context, s *models.LiveSession) error {
	if s.Status == "" {
		s.Status = models.SessionCreated
	}
	const q = `INSERT INTO live_sessions (id, class_id, host_id, title, description, max_participants, status, started_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, CASE WHEN $6 = 'active' THEN NOW() END)
		RETURNING id, started_at, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, s.ClassID, s.HostID, s.Title, s.Description, s.MaxParticipants, s.Status).
		Scan(&s.ID, &s.StartedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert live session: %w", err)
	}
	return nil
}

// GetByID returns a session by ID or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.LiveSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM live_sessions WHERE id = $1`
	return scanSession(r.pool.QueryRow(ctx, q, id))
}

// ListByStatus returns sessions with the given status, newest first.
func (r *Repository) ListByStatus(ctx context.Context, status models.SessionStatus) ([]models.LiveSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM live_sessions WHERE status = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.LiveSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// UpdateStatus moves a session along its lifecycle. The current status is checked in the
// WHERE clause so concurrent transitions cannot skip a state.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus) (*models.LiveSession, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.CanTransition(status) {
		return nil, ErrInvalidTransition
	}
	q := `UPDATE live_sessions SET status = $2,
			started_at = CASE WHEN $2 = 'active' THEN NOW() ELSE started_at END,
			ended_at = CASE WHEN $2 = 'ended' THEN NOW() ELSE ended_at END,
			recording_enabled = CASE WHEN $2 = 'ended' THEN FALSE ELSE recording_enabled END,
			updated_at = NOW()
		WHERE id = $1 AND status = $3
		RETURNING ` + sessionColumns
	s, err := scanSession(r.pool.QueryRow(ctx, q, id, status, current.Status))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidTransition
	}
	return s, err
}

// SetRecording stores the recording flag.
func (r *Repository) SetRecording(ctx context.Context, id uuid.UUID, enabled bool) error {
	const q = `UPDATE live_sessions SET recording_enabled = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCaptions stores the caption flag and recognition language.
func (r *Repository) SetCaptions(ctx context.Context, id uuid.UUID, enabled bool, language string) error {
	const q = `UPDATE live_sessions SET captions_enabled = $2, caption_language = $3, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q, id, enabled, language)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
