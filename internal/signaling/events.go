package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/learnx/live-backend/internal/models"
)

// Envelope is the WebSocket message frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client to server events.
const (
	EventJoinSession        = "join-session"
	EventLeaveSession       = "leave-session"
	EventChatMessage        = "chat-message"
	EventLiveCaption        = "live-caption"
	EventToggleRecording    = "toggle-recording"
	EventStartCaptions      = "start-captions"
	EventStopCaptions       = "stop-captions"
	EventOffer              = "offer"
	EventAnswer             = "answer"
	EventICECandidate       = "ice-candidate"
	EventSharePPT           = "share-ppt"
	EventPPTSlideChange     = "ppt-slide-change"
	EventClosePPT           = "close-ppt"
	EventSharePDF           = "share-pdf"
	EventPDFPageChange      = "pdf-page-change"
	EventClosePDF           = "close-pdf"
	EventScreenShareStart   = "screen-share-start"
	EventScreenShareStop    = "screen-share-stop"
	EventSetPresenter       = "set-presenter"
	EventEndSession         = "end-session"
	EventSFUPublish         = "sfu-publish"
	EventSFUSubscribe       = "sfu-subscribe"
	EventSFUSubscribeAnswer = "sfu-subscribe-answer"
	EventSFUICECandidate    = "sfu-ice-candidate"
	EventPingTest           = "ping-test"
)

// Server to client events.
const (
	EventSessionJoined         = "session-joined"
	EventUserJoined            = "user-joined"
	EventUserLeft              = "user-left"
	EventChatMessageTranslated = "chat-message-translated"
	EventLiveCaptionTranslated = "live-caption-translated"
	EventRecordingStatus       = "recording-status"
	EventRecordingError        = "recording-error"
	EventCaptionsStarted       = "captions-started"
	EventCaptionsStopped       = "captions-stopped"
	EventPPTShared             = "ppt-shared"
	EventPPTSlideChanged       = "ppt-slide-changed"
	EventPPTClosed             = "ppt-closed"
	EventPDFShared             = "pdf-shared"
	EventPDFPageChanged        = "pdf-page-changed"
	EventPDFClosed             = "pdf-closed"
	EventScreenShareStarted    = "screen-share-started"
	EventScreenShareStopped    = "screen-share-stopped"
	EventPresenterChanged      = "presenter-changed"
	EventSFUPublishAnswer      = "sfu-publish-answer"
	EventSFUSubscribeOffer     = "sfu-subscribe-offer"
	EventPongTest              = "pong-test"
	EventJoinError             = "join-error"
	EventError                 = "error"
	EventArtifactError         = "artifact-error"
	EventSignalError           = "signal-error"
	EventSessionEnded          = "session-ended"
)

var (
	// ErrUnknownEvent is returned for an event name the channel does not handle.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrMalformedPayload is returned when a payload fails to decode or validate.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Inbound payloads. Every field is validated before the session sees the event.

type JoinSessionPayload struct {
	SessionID       string `json:"sessionId" validate:"required,uuid"`
	UserID          string `json:"userId" validate:"required,uuid"`
	UserRole        string `json:"userRole" validate:"omitempty,oneof=teacher student admin"`
	UserName        string `json:"userName" validate:"omitempty,max=100"`
	CaptionLanguage string `json:"captionLanguage" validate:"language"`
}

type SessionRefPayload struct {
	SessionID string `json:"sessionId" validate:"omitempty,uuid"`
}

type ChatMessagePayload struct {
	SessionID   string   `json:"sessionId" validate:"omitempty,uuid"`
	Message     string   `json:"message" validate:"notblank,max=2000"`
	Language    string   `json:"language" validate:"language"`
	TranslateTo []string `json:"translateTo" validate:"max=14,dive,language"`
}

type LiveCaptionPayload struct {
	SessionID  string  `json:"sessionId" validate:"omitempty,uuid"`
	Text       string  `json:"text" validate:"notblank,max=5000"`
	Language   string  `json:"language" validate:"required,language"`
	Confidence float64 `json:"confidence" validate:"min=0,max=1"`
	IsFinal    bool    `json:"isFinal"`
	Timestamp  int64   `json:"timestamp"`
	StartTime  float64 `json:"startTime" validate:"min=0"`
}

type ToggleRecordingPayload struct {
	SessionID string `json:"sessionId" validate:"omitempty,uuid"`
	Enable    *bool  `json:"enable" validate:"required"`
}

type CaptionsPayload struct {
	SessionID string `json:"sessionId" validate:"omitempty,uuid"`
	Language  string `json:"language" validate:"language"`
}

// DescriptionPayload carries an SDP offer or answer; the description is relayed as sent.
type DescriptionPayload struct {
	SessionID    string          `json:"sessionId" validate:"omitempty,uuid"`
	TargetUserID string          `json:"targetUserId" validate:"omitempty,uuid"`
	SDP          json.RawMessage `json:"sdp" validate:"required"`
}

type CandidatePayload struct {
	SessionID    string          `json:"sessionId" validate:"omitempty,uuid"`
	TargetUserID string          `json:"targetUserId" validate:"omitempty,uuid"`
	Candidate    json.RawMessage `json:"candidate" validate:"required"`
}

type SharePPTPayload struct {
	SessionID string   `json:"sessionId" validate:"omitempty,uuid"`
	FileURL   string   `json:"fileUrl" validate:"omitempty,url"`
	FileName  string   `json:"fileName" validate:"max=255"`
	Slides    []string `json:"slides" validate:"required,min=1,max=500,dive,url"`
}

type SlideChangePayload struct {
	SessionID string `json:"sessionId" validate:"omitempty,uuid"`
	Slide     int    `json:"slide" validate:"required,min=1"`
}

type SharePDFPayload struct {
	SessionID  string `json:"sessionId" validate:"omitempty,uuid"`
	FileURL    string `json:"fileUrl" validate:"required,url"`
	FileName   string `json:"fileName" validate:"max=255"`
	TotalPages int    `json:"totalPages" validate:"required,min=1,max=5000"`
}

type PageChangePayload struct {
	SessionID string `json:"sessionId" validate:"omitempty,uuid"`
	Page      int    `json:"page" validate:"required,min=1"`
}

type SetPresenterPayload struct {
	SessionID string `json:"sessionId" validate:"omitempty,uuid"`
	UserID    string `json:"userId" validate:"required,uuid"`
}

type SFUDescriptionPayload struct {
	SessionID string `json:"sessionId" validate:"omitempty,uuid"`
	SDP       string `json:"sdp" validate:"notblank"`
}

type SFUCandidatePayload struct {
	SessionID string                  `json:"sessionId" validate:"omitempty,uuid"`
	Target    string                  `json:"target" validate:"required,oneof=publisher subscriber"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type PingTestPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// Outbound payloads.

type SessionJoinedPayload struct {
	models.LiveSnapshot
	ChatHistory []models.ChatMessage `json:"chatHistory"`
}

type ParticipantPayload struct {
	SessionID uuid.UUID `json:"sessionId"`
	models.Participant
}

type ChatTranslatedPayload struct {
	ID           uuid.UUID         `json:"id"`
	SessionID    uuid.UUID         `json:"sessionId"`
	Translations map[string]string `json:"translations"`
}

type CaptionTranslatedPayload struct {
	ID           uuid.UUID         `json:"id"`
	SessionID    uuid.UUID         `json:"sessionId"`
	UserID       uuid.UUID         `json:"userId"`
	Text         string            `json:"text"`
	Language     string            `json:"language"`
	Translations map[string]string `json:"translations"`
	Providers    map[string]string `json:"providers,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

type RecordingStatusPayload struct {
	SessionID   uuid.UUID  `json:"sessionId"`
	IsRecording bool       `json:"isRecording"`
	RecordingID *uuid.UUID `json:"recordingId,omitempty"`
	UserID      uuid.UUID  `json:"userId"`
}

type CaptionsStatePayload struct {
	SessionID uuid.UUID `json:"sessionId"`
	Language  string    `json:"language"`
	UserID    uuid.UUID `json:"userId"`
}

// SignalPayload is a relayed offer, answer or candidate with the sender attached.
type SignalPayload struct {
	SessionID    uuid.UUID       `json:"sessionId"`
	FromUserID   uuid.UUID       `json:"fromUserId"`
	TargetUserID *uuid.UUID      `json:"targetUserId,omitempty"`
	SDP          json.RawMessage `json:"sdp,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

// ArtifactPayload is the state-replace event for a shared artifact.
type ArtifactPayload struct {
	SessionID uuid.UUID `json:"sessionId"`
	models.ArtifactState
	Slide    int       `json:"slide,omitempty"`
	UserID   uuid.UUID `json:"userId"`
	UserName string    `json:"userName"`
}

type PresenterPayload struct {
	SessionID uuid.UUID  `json:"sessionId"`
	UserID    *uuid.UUID `json:"userId"`
}

type SFUDescriptionOut struct {
	SessionID uuid.UUID `json:"sessionId"`
	SDP       string    `json:"sdp"`
}

type SFUCandidateOut struct {
	SessionID uuid.UUID               `json:"sessionId"`
	Target    string                  `json:"target"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type PongPayload struct {
	Timestamp  int64 `json:"timestamp"`
	ServerTime int64 `json:"serverTime"`
}

// ErrorPayload is sent with join-error, error, artifact-error, signal-error and recording-error.
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

type SessionEndedPayload struct {
	SessionID uuid.UUID `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
}

var payloadTypes = map[string]func() any{
	EventJoinSession:        func() any { return &JoinSessionPayload{} },
	EventLeaveSession:       func() any { return &SessionRefPayload{} },
	EventChatMessage:        func() any { return &ChatMessagePayload{} },
	EventLiveCaption:        func() any { return &LiveCaptionPayload{} },
	EventToggleRecording:    func() any { return &ToggleRecordingPayload{} },
	EventStartCaptions:      func() any { return &CaptionsPayload{} },
	EventStopCaptions:       func() any { return &CaptionsPayload{} },
	EventOffer:              func() any { return &DescriptionPayload{} },
	EventAnswer:             func() any { return &DescriptionPayload{} },
	EventICECandidate:       func() any { return &CandidatePayload{} },
	EventSharePPT:           func() any { return &SharePPTPayload{} },
	EventPPTSlideChange:     func() any { return &SlideChangePayload{} },
	EventClosePPT:           func() any { return &SessionRefPayload{} },
	EventSharePDF:           func() any { return &SharePDFPayload{} },
	EventPDFPageChange:      func() any { return &PageChangePayload{} },
	EventClosePDF:           func() any { return &SessionRefPayload{} },
	EventScreenShareStart:   func() any { return &SessionRefPayload{} },
	EventScreenShareStop:    func() any { return &SessionRefPayload{} },
	EventSetPresenter:       func() any { return &SetPresenterPayload{} },
	EventEndSession:         func() any { return &SessionRefPayload{} },
	EventSFUPublish:         func() any { return &SFUDescriptionPayload{} },
	EventSFUSubscribe:       func() any { return &SessionRefPayload{} },
	EventSFUSubscribeAnswer: func() any { return &SFUDescriptionPayload{} },
	EventSFUICECandidate:    func() any { return &SFUCandidatePayload{} },
	EventPingTest:           func() any { return &PingTestPayload{} },
}

// Decode turns an envelope into its typed, validated payload.
func Decode(env Envelope) (any, error) {
	ctor, ok := payloadTypes[env.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	p := ctor()
	data := env.Data
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, validationMessage(err))
	}
	if c, ok := p.(*SFUCandidatePayload); ok && c.Candidate.Candidate == "" {
		return nil, fmt.Errorf("%w: candidate is a required field", ErrMalformedPayload)
	}
	return p, nil
}

// sessionRef extracts the optional sessionId every payload may carry.
func sessionRef(p any) string {
	switch v := p.(type) {
	case *JoinSessionPayload:
		return v.SessionID
	case *SessionRefPayload:
		return v.SessionID
	case *ChatMessagePayload:
		return v.SessionID
	case *LiveCaptionPayload:
		return v.SessionID
	case *ToggleRecordingPayload:
		return v.SessionID
	case *CaptionsPayload:
		return v.SessionID
	case *DescriptionPayload:
		return v.SessionID
	case *CandidatePayload:
		return v.SessionID
	case *SharePPTPayload:
		return v.SessionID
	case *SlideChangePayload:
		return v.SessionID
	case *SharePDFPayload:
		return v.SessionID
	case *PageChangePayload:
		return v.SessionID
	case *SetPresenterPayload:
		return v.SessionID
	case *SFUDescriptionPayload:
		return v.SessionID
	case *SFUCandidatePayload:
		return v.SessionID
	}
	return ""
}
