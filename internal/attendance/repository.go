// Package attendance keeps the join and leave log of live sessions.
package attendance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnx/live-backend/internal/models"
)

// Entry is one stay of a participant in a session.
type Entry struct {
	UserID       uuid.UUID   `json:"user_id"`
	Role         models.Role `json:"role"`
	JoinedAt     time.Time   `json:"joined_at"`
	LeftAt       *time.Time  `json:"left_at,omitempty"`
	WatchSeconds int64       `json:"watch_seconds"`
}

// Summary aggregates closed stays of a session.
type Summary struct {
	TotalWatchSeconds int64 `json:"total_watch_seconds"`
	DistinctUsers     int   `json:"distinct_users"`
}

// Repository handles live_attendance.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an attendance repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LogJoin opens a stay for the user starting at at.
func (r *Repository) LogJoin(ctx context.Context, sessionID, userID uuid.UUID, role models.Role, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO live_attendance (session_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`,
		sessionID, userID, role, at)
	return err
}

// LogLeave closes the user's most recent stay that was open at at.
func (r *Repository) LogLeave(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE live_attendance a SET left_at = $3, watch_seconds = GREATEST(0, EXTRACT(EPOCH FROM ($3::timestamptz - a.joined_at))::BIGINT)
		 FROM (SELECT id FROM live_attendance
		       WHERE session_id = $1 AND user_id = $2 AND left_at IS NULL AND joined_at <= $3
		       ORDER BY joined_at DESC LIMIT 1) AS sub
		 WHERE a.id = sub.id`,
		sessionID, userID, at)
	return err
}

// CloseSession closes every stay that was still open when the session stopped at at.
// Stays opened afterwards by a restarted session are left alone.
func (r *Repository) CloseSession(ctx context.Context, sessionID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE live_attendance SET left_at = $2, watch_seconds = GREATEST(0, EXTRACT(EPOCH FROM ($2::timestamptz - joined_at))::BIGINT)
		 WHERE session_id = $1 AND left_at IS NULL AND joined_at <= $2`,
		sessionID, at)
	return err
}

// Summary returns total watch time and distinct users over closed stays.
func (r *Repository) Summary(ctx context.Context, sessionID uuid.UUID) (*Summary, error) {
	var s Summary
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(watch_seconds), 0), COUNT(DISTINCT user_id) FROM live_attendance WHERE session_id = $1 AND left_at IS NOT NULL`,
		sessionID).Scan(&s.TotalWatchSeconds, &s.DistinctUsers)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns the session's stays, newest first.
func (r *Repository) List(ctx context.Context, sessionID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, role, joined_at, left_at, watch_seconds
		 FROM live_attendance WHERE session_id = $1 ORDER BY joined_at DESC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.UserID, &e.Role, &e.JoinedAt, &e.LeftAt, &e.WatchSeconds)
		return e, err
	})
}
