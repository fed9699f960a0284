package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
)

var (
	// ErrNegotiation is returned when descriptions arrive out of order.
	ErrNegotiation = errors.New("negotiation error")
	// ErrPeerClosed is returned for operations on a closed peer.
	ErrPeerClosed = errors.New("peer closed")
)

// PeerConnection is the subset of *webrtc.PeerConnection used here.
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	GetStats() webrtc.StatsReport
	Close() error
}

var _ PeerConnection = (*webrtc.PeerConnection)(nil)

type signalingState int

const (
	stateStable signalingState = iota
	stateHaveLocalOffer
	stateHaveRemoteOffer
)

func (s signalingState) String() string {
	switch s {
	case stateHaveLocalOffer:
		return "have-local-offer"
	case stateHaveRemoteOffer:
		return "have-remote-offer"
	default:
		return "stable"
	}
}

// Peer is the negotiation state for one remote endpoint (a participant or the SFU relay).
// All methods are serialized; remote ICE candidates received before the remote description
// are queued and applied in receipt order once it is set.
type Peer struct {
	RemoteID  uuid.UUID
	Initiator bool

	mu        sync.Mutex
	pc        PeerConnection
	state     signalingState
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	connState webrtc.PeerConnectionState
	closed    bool
}

// NewPeer wraps pc. Initiators create offers; the other side answers.
func NewPeer(remoteID uuid.UUID, pc PeerConnection, initiator bool) *Peer {
	return &Peer{RemoteID: remoteID, Initiator: initiator, pc: pc, connState: webrtc.PeerConnectionStateNew}
}

// CreateOffer creates an offer and sets it as the local description before returning it.
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return webrtc.SessionDescription{}, ErrPeerClosed
	}
	if p.state != stateStable {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: create offer in state %s", ErrNegotiation, p.state)
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local offer: %w", err)
	}
	p.state = stateHaveLocalOffer
	return offer, nil
}

// HandleOffer applies a remote offer, flushes queued candidates and returns the local answer.
func (p *Peer) HandleOffer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return webrtc.SessionDescription{}, ErrPeerClosed
	}
	if offer.Type != webrtc.SDPTypeOffer {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: expected offer, got %s", ErrNegotiation, offer.Type)
	}
	if p.state != stateStable {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: offer received in state %s", ErrNegotiation, p.state)
	}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: set remote offer: %v", ErrNegotiation, err)
	}
	p.state = stateHaveRemoteOffer
	p.remoteSet = true
	flushErr := p.flushLocked()

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local answer: %w", err)
	}
	p.state = stateStable
	return answer, flushErr
}

// HandleAnswer applies the remote answer to our outstanding offer and flushes queued candidates.
func (p *Peer) HandleAnswer(answer webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPeerClosed
	}
	if answer.Type != webrtc.SDPTypeAnswer {
		return fmt.Errorf("%w: expected answer, got %s", ErrNegotiation, answer.Type)
	}
	if p.state != stateHaveLocalOffer {
		return fmt.Errorf("%w: answer received in state %s", ErrNegotiation, p.state)
	}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("%w: set remote answer: %v", ErrNegotiation, err)
	}
	p.state = stateStable
	p.remoteSet = true
	return p.flushLocked()
}

// AddCandidate applies a remote candidate, or queues it until the remote description is set.
func (p *Peer) AddCandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPeerClosed
	}
	if !p.remoteSet {
		p.pending = append(p.pending, c)
		return nil
	}
	return p.pc.AddICECandidate(c)
}

func (p *Peer) flushLocked() error {
	queued := p.pending
	p.pending = nil
	var errs []error
	for _, c := range queued {
		if err := p.pc.AddICECandidate(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PendingCandidates returns how many remote candidates are waiting for the remote description.
func (p *Peer) PendingCandidates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// AddTrack attaches a local track.
func (p *Peer) AddTrack(t webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPeerClosed
	}
	_, err := p.pc.AddTrack(t)
	return err
}

func (p *Peer) setConnectionState(s webrtc.PeerConnectionState) {
	p.mu.Lock()
	p.connState = s
	p.mu.Unlock()
}

// ConnectionState returns the last observed connection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connState
}

// Stats returns the connection's current stats report.
func (p *Peer) Stats() webrtc.StatsReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	return p.pc.GetStats()
}

// Close closes the underlying connection. Safe to call more than once.
func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.pending = nil
	p.connState = webrtc.PeerConnectionStateClosed
	return p.pc.Close()
}
