package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/learnx/live-backend/internal/livesessions"
	"github.com/learnx/live-backend/internal/models"
	"github.com/learnx/live-backend/internal/translation"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
	writeWait    = 10 * time.Second
	// maxMessageSize bounds one inbound frame (SDP offers are the largest).
	maxMessageSize = 65536

	storeTimeout     = 5 * time.Second
	recordingTimeout = 30 * time.Second
)

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionNotActive  = errors.New("session not active")
	ErrSessionFull       = errors.New("session is full")
	ErrIdentityMismatch  = errors.New("identity does not match token")
	ErrNotJoined         = errors.New("join a session first")
	ErrWrongSession      = errors.New("not joined to this session")
	ErrNotHost           = errors.New("only the host can do this")
	ErrNotPresenter      = errors.New("only the presenter can publish")
	ErrTargetNotFound    = errors.New("target not in session")
	ErrRecordingBusy     = errors.New("recording change already in progress")
	ErrFeatureDisabled   = errors.New("not available on this server")
	ErrReplacedByNewJoin = errors.New("joined from another connection")
)

// Translator resolves translations for captions and chat (translation.Engine).
type Translator interface {
	TranslateAll(ctx context.Context, text, source string, targets []string) (map[string]translation.Result, error)
}

// Recorder starts and stops server-side recording of a session (recordings.Service).
type Recorder interface {
	Start(ctx context.Context, sessionID, startedBy uuid.UUID) (*models.Recording, error)
	Stop(ctx context.Context, sessionID uuid.UUID) (*models.Recording, error)
}

// AttendanceLog records who was in a session and for how long (attendance.Repository).
// Writes for one session are applied in order; at is when the event happened on the actor.
type AttendanceLog interface {
	LogJoin(ctx context.Context, sessionID, userID uuid.UUID, role models.Role, at time.Time) error
	LogLeave(ctx context.Context, sessionID, userID uuid.UUID, at time.Time) error
	CloseSession(ctx context.Context, sessionID uuid.UUID, at time.Time) error
}

// MediaRelay is the server relay used when one presenter publishes to many (rtc.SFU).
type MediaRelay interface {
	Publish(sessionID, publisherID uuid.UUID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	Subscribe(sessionID, userID uuid.UUID) (webrtc.SessionDescription, error)
	HandleSubscriberAnswer(sessionID, userID uuid.UUID, answer webrtc.SessionDescription) error
	AddCandidate(sessionID, userID uuid.UUID, target string, c webrtc.ICECandidateInit) error
	Unsubscribe(sessionID, userID uuid.UUID)
	ClosePublisher(sessionID uuid.UUID)
	Publisher(sessionID uuid.UUID) (uuid.UUID, bool)
	CloseRoom(sessionID uuid.UUID)
}

// EndPolicy decides whether a departure ends the session. remaining excludes the
// departed participant.
type EndPolicy func(departed models.Participant, wasHost bool, remaining []models.Participant) bool

// HostLeavePolicy ends the session when the host leaves and no other teacher remains.
func HostLeavePolicy(departed models.Participant, wasHost bool, remaining []models.Participant) bool {
	if !wasHost {
		return false
	}
	for _, p := range remaining {
		if p.Role == models.RoleTeacher {
			return false
		}
	}
	return true
}

// Config wires a Hub. Store is required; every other collaborator is optional and the
// matching events answer with an error when it is missing.
type Config struct {
	Store      livesessions.Store
	Translator Translator
	Recorder   Recorder
	SFU        MediaRelay
	Attendance AttendanceLog
	EndPolicy  EndPolicy

	// DefaultTargets are translated for every final caption, on top of participant languages.
	DefaultTargets   []string
	ChatHistory      int
	CaptionWindow    int
	ClientBuffer     int
	TranslateTimeout time.Duration
	Logger           *zap.Logger
}

// Hub is the registry of running sessions. Each session is owned by one actor goroutine
// that serializes every event for it.
type Hub struct {
	cfg      Config
	log      *zap.Logger
	mu       sync.Mutex
	sessions map[uuid.UUID]*session
}

// NewHub creates a hub.
func NewHub(cfg Config) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ChatHistory <= 0 {
		cfg.ChatHistory = 500
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = 256
	}
	if cfg.TranslateTimeout <= 0 {
		cfg.TranslateTimeout = 3 * time.Second
	}
	targets := make([]string, 0, len(cfg.DefaultTargets))
	for _, t := range cfg.DefaultTargets {
		if t = translation.NormalizeLanguage(t); translation.IsSupported(t) {
			targets = append(targets, t)
		}
	}
	cfg.DefaultTargets = targets
	return &Hub{
		cfg:      cfg,
		log:      cfg.Logger,
		sessions: make(map[uuid.UUID]*session),
	}
}

// join validates the request against the token identity and the stored session, then
// hands the client to the session actor.
func (h *Hub) join(ctx context.Context, c *Client, p *JoinSessionPayload) (*session, error) {
	sessionID, err := uuid.Parse(p.SessionID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if userID, err := uuid.Parse(p.UserID); err != nil || userID != c.UserID {
		return nil, ErrIdentityMismatch
	}
	if p.UserRole != "" && models.Role(p.UserRole) != c.Role {
		return nil, ErrIdentityMismatch
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	meta, err := h.cfg.Store.GetByID(ctx, sessionID)
	cancel()
	if err != nil {
		if errors.Is(err, livesessions.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !meta.IsActive() {
		return nil, ErrSessionNotActive
	}

	// A session whose actor is shutting down rejects the post; the retry starts a fresh one.
	for attempt := 0; attempt < 2; attempt++ {
		s := h.getOrStart(meta)
		reply := make(chan error, 1)
		if !s.post(joinCmd{client: c, payload: p, reply: reply}) {
			continue
		}
		if err := <-reply; err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, ErrSessionNotActive
}

func (h *Hub) getOrStart(meta *models.LiveSession) *session {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[meta.ID]; ok {
		return s
	}
	s := newSession(h, meta)
	h.sessions[meta.ID] = s
	go s.run()
	h.log.Info("live session opened", zap.String("session_id", meta.ID.String()))
	return s
}

func (h *Hub) get(id uuid.UUID) *session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[id]
}

// detach removes s from the registry if it is still the registered actor.
func (h *Hub) detach(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.sessions[s.id]; ok && cur == s {
		delete(h.sessions, s.id)
	}
}

// Snapshot returns the running state of a session, or false when nobody is connected.
func (h *Hub) Snapshot(ctx context.Context, sessionID uuid.UUID) (*models.LiveSnapshot, bool) {
	s := h.get(sessionID)
	if s == nil {
		return nil, false
	}
	reply := make(chan models.LiveSnapshot, 1)
	if !s.post(snapshotCmd{reply: reply}) {
		return nil, false
	}
	select {
	case snap := <-reply:
		return &snap, true
	case <-ctx.Done():
		return nil, false
	}
}

// EndSession marks the session ended and, when it is running, notifies every participant
// and tears it down.
func (h *Hub) EndSession(ctx context.Context, sessionID uuid.UUID, reason string) (*models.LiveSession, error) {
	if s := h.get(sessionID); s != nil {
		reply := make(chan endResult, 1)
		if s.post(endCmd{reason: reason, reply: reply}) {
			select {
			case res := <-reply:
				return res.session, res.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return h.cfg.Store.UpdateStatus(ctx, sessionID, models.SessionEnded)
}

// ActiveSessions returns the number of running session actors.
func (h *Hub) ActiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// OnSFUCandidate routes a relay ICE candidate to the participant it belongs to.
func (h *Hub) OnSFUCandidate(sessionID, userID uuid.UUID, target string, c webrtc.ICECandidateInit) {
	if s := h.get(sessionID); s != nil {
		// Pion may call back while the actor is inside an SFU call.
		go s.post(sfuCandidateCmd{userID: userID, target: target, candidate: c})
	}
}

// OnSubscriberOffer routes a relay re-offer to its subscriber.
func (h *Hub) OnSubscriberOffer(sessionID, userID uuid.UUID, offer webrtc.SessionDescription) {
	if s := h.get(sessionID); s != nil {
		go s.post(sfuOfferCmd{userID: userID, offer: offer})
	}
}

// Close stops every session actor without ending the sessions. Connected clients are
// disconnected and must join again.
func (h *Hub) Close() {
	h.mu.Lock()
	list := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		list = append(list, s)
	}
	h.mu.Unlock()
	for _, s := range list {
		if s.post(stopCmd{}) {
			<-s.done
		}
	}
}
