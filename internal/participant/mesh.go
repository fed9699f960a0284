package participant

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/learnx/live-backend/internal/signaling"
)

// Negotiator is the mesh side of a participant (rtc.Coordinator).
type Negotiator interface {
	Connect(remote uuid.UUID) error
	HandleOffer(from uuid.UUID, offer webrtc.SessionDescription) error
	HandleAnswer(from uuid.UUID, answer webrtc.SessionDescription) error
	HandleCandidate(from uuid.UUID, candidate webrtc.ICECandidateInit) error
	RemovePeer(remote uuid.UUID)
}

// Mesh feeds session events into a Negotiator. The joining participant offers to
// everyone already present; existing participants wait for that offer.
type Mesh struct {
	self uuid.UUID
	neg  Negotiator
}

// NewMesh creates a mesh bridge for the local participant self.
func NewMesh(self uuid.UUID, neg Negotiator) *Mesh {
	return &Mesh{self: self, neg: neg}
}

// Handle applies env when it concerns the mesh. It reports whether env was consumed.
func (m *Mesh) Handle(env signaling.Envelope) (bool, error) {
	switch env.Event {
	case signaling.EventSessionJoined:
		var p signaling.SessionJoinedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return true, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		var firstErr error
		for _, other := range p.Participants {
			if other.UserID == m.self {
				continue
			}
			if err := m.neg.Connect(other.UserID); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("connect %s: %w", other.UserID, err)
			}
		}
		return true, firstErr

	case signaling.EventUserLeft:
		var p signaling.ParticipantPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return true, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		m.neg.RemovePeer(p.UserID)
		return true, nil

	case signaling.EventOffer, signaling.EventAnswer, signaling.EventICECandidate:
		var p signaling.SignalPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return true, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if p.FromUserID == m.self {
			return true, nil
		}
		return true, m.signal(env.Event, p)
	}
	return false, nil
}

func (m *Mesh) signal(event string, p signaling.SignalPayload) error {
	if event == signaling.EventICECandidate {
		var c webrtc.ICECandidateInit
		if err := json.Unmarshal(p.Candidate, &c); err != nil {
			return fmt.Errorf("decode candidate: %w", err)
		}
		return m.neg.HandleCandidate(p.FromUserID, c)
	}
	var sdp webrtc.SessionDescription
	if err := json.Unmarshal(p.SDP, &sdp); err != nil {
		return fmt.Errorf("decode description: %w", err)
	}
	if event == signaling.EventOffer {
		return m.neg.HandleOffer(p.FromUserID, sdp)
	}
	return m.neg.HandleAnswer(p.FromUserID, sdp)
}
