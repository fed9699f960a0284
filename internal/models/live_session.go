package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the live session lifecycle state.
type SessionStatus string

const (
	SessionCreated SessionStatus = "created"
	SessionActive  SessionStatus = "active"
	SessionEnded   SessionStatus = "ended"
)

// CanTransition reports whether the lifecycle allows moving from s to next.
// created -> active -> ended; ended is terminal.
func (s SessionStatus) CanTransition(next SessionStatus) bool {
	switch s {
	case SessionCreated:
		return next == SessionActive || next == SessionEnded
	case SessionActive:
		return next == SessionEnded
	default:
		return false
	}
}

// LiveSession is one live class meeting.
type LiveSession struct {
	ID               uuid.UUID     `json:"id"`
	ClassID          *uuid.UUID    `json:"class_id,omitempty"`
	HostID           uuid.UUID     `json:"host_id"`
	Title            string        `json:"title"`
	Description      string        `json:"description,omitempty"`
	MaxParticipants  int           `json:"max_participants"`
	Status           SessionStatus `json:"status"`
	RecordingEnabled bool          `json:"recording_enabled"`
	CaptionsEnabled  bool          `json:"captions_enabled"`
	CaptionLanguage  string        `json:"caption_language,omitempty"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	EndedAt          *time.Time    `json:"ended_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// IsActive reports whether participants may join.
func (s *LiveSession) IsActive() bool { return s.Status == SessionActive }
