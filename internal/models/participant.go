package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a connected user within a live session.
type Participant struct {
	UserID          uuid.UUID `json:"userId"`
	Name            string    `json:"userName"`
	Role            Role      `json:"userRole"`
	IsStreaming     bool      `json:"isStreaming"`
	IsPresenter     bool      `json:"isPresenter"`
	CaptionLanguage string    `json:"captionLanguage,omitempty"`
	JoinedAt        time.Time `json:"joinedAt"`
}
