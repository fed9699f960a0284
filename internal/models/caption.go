package models

import (
	"time"

	"github.com/google/uuid"
)

// LiveCaption is one speech recognition result relayed through a session.
type LiveCaption struct {
	ID              uuid.UUID         `json:"id"`
	SessionID       uuid.UUID         `json:"sessionId"`
	UserID          uuid.UUID         `json:"userId"`
	UserName        string            `json:"userName"`
	Text            string            `json:"text"`
	Language        string            `json:"language"`
	Confidence      float64           `json:"confidence"`
	IsFinal         bool              `json:"isFinal"`
	Timestamp       time.Time         `json:"timestamp"`
	ClientTimestamp int64             `json:"clientTimestamp,omitempty"`
	StartTime       float64           `json:"startTime"`
	Translations    map[string]string `json:"translations,omitempty"`
}
