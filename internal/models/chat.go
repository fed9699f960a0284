package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is an immutable chat line in a session.
type ChatMessage struct {
	ID           uuid.UUID         `json:"id"`
	SessionID    uuid.UUID         `json:"sessionId"`
	UserID       uuid.UUID         `json:"userId"`
	UserName     string            `json:"userName"`
	Message      string            `json:"message"`
	MessageType  string            `json:"messageType"`
	Timestamp    time.Time         `json:"timestamp"`
	Translations map[string]string `json:"translations,omitempty"`
}
