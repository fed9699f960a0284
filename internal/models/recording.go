package models

import (
	"time"

	"github.com/google/uuid"
)

// RecordingStatus represents recording lifecycle.
const (
	RecordingStatusRecording  = "recording"
	RecordingStatusProcessing = "processing"
	RecordingStatusCompleted  = "completed"
	RecordingStatusFailed     = "failed"
)

// Recording is a server-side recording of a live session (SFU tap -> ffmpeg -> S3).
type Recording struct {
	ID        uuid.UUID  `json:"id"`
	SessionID uuid.UUID  `json:"session_id"`
	StartedBy uuid.UUID  `json:"started_by"`
	LocalPath string     `json:"-"`
	S3URL     string     `json:"s3_url,omitempty"`
	S3Key     string     `json:"s3_key,omitempty"`
	Duration  int        `json:"duration"`
	FileSize  int64      `json:"file_size"`
	Status    string     `json:"status"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
