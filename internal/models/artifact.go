package models

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactKind identifies a shared artifact relay.
type ArtifactKind string

const (
	ArtifactScreen ArtifactKind = "screen"
	ArtifactPDF    ArtifactKind = "pdf"
	ArtifactPPT    ArtifactKind = "ppt"
)

// ArtifactState is the full replacement state of one shared artifact.
// Followers always re-render from it; it is never sent as a delta.
type ArtifactState struct {
	Kind       ArtifactKind `json:"kind"`
	FileURL    string       `json:"fileUrl,omitempty"`
	FileName   string       `json:"fileName,omitempty"`
	Page       int          `json:"page"`
	TotalPages int          `json:"totalPages"`
	Slides     []string     `json:"slides,omitempty"`
	OwnerID    uuid.UUID    `json:"sharedBy"`
	OwnerName  string       `json:"sharedByName"`
	Version    int          `json:"version"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// LiveSnapshot is the in-memory state of a running session.
type LiveSnapshot struct {
	SessionID       uuid.UUID       `json:"sessionId"`
	Participants    []Participant   `json:"participants"`
	IsRecording     bool            `json:"isRecording"`
	RecordingID     *uuid.UUID      `json:"recordingId,omitempty"`
	CaptionsEnabled bool            `json:"captionsEnabled"`
	CaptionLanguage string          `json:"captionLanguage,omitempty"`
	PresenterID     *uuid.UUID      `json:"presenterId,omitempty"`
	Artifacts       []ArtifactState `json:"artifacts"`
	RecentCaptions  []LiveCaption   `json:"recentCaptions"`
	StreamStartTime time.Time       `json:"streamStartTime"`
}
