package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/learnx/live-backend/internal/netquality"
)

var (
	// ErrRenegotiationExhausted is reported through OnError when a peer keeps failing.
	ErrRenegotiationExhausted = errors.New("renegotiation attempts exhausted")
	// ErrCoordinatorClosed is returned after Close.
	ErrCoordinatorClosed = errors.New("coordinator closed")
)

// Signaler relays negotiation messages to a remote participant through the session channel.
type Signaler interface {
	SendOffer(to uuid.UUID, sdp webrtc.SessionDescription) error
	SendAnswer(to uuid.UUID, sdp webrtc.SessionDescription) error
	SendCandidate(to uuid.UUID, candidate webrtc.ICECandidateInit) error
}

// Config wires a Coordinator.
type Config struct {
	LocalID           uuid.UUID
	MaxRenegotiations int
	NewPeerConnection func() (PeerConnection, error)

	OnRemoteTrack func(from uuid.UUID, track *webrtc.TrackRemote)
	OnStateChange func(remote uuid.UUID, state webrtc.PeerConnectionState)
	// OnError receives errors that need application attention, such as ErrRenegotiationExhausted.
	OnError func(remote uuid.UUID, err error)
	Logger  *zap.Logger
}

// Coordinator owns the local participant's peer connections in a mesh:
// one Peer per remote participant, sharing the same local tracks.
type Coordinator struct {
	cfg      Config
	signaler Signaler
	media    MediaSource

	mu       sync.Mutex
	peers    map[uuid.UUID]*Peer
	failures map[uuid.UUID]int
	tracks   []webrtc.TrackLocal
	quality  netquality.Settings
	closed   bool
}

// NewCoordinator creates a coordinator. media may be nil for receive-only clients.
func NewCoordinator(cfg Config, signaler Signaler, media MediaSource) *Coordinator {
	if cfg.MaxRenegotiations <= 0 {
		cfg.MaxRenegotiations = 3
	}
	if cfg.NewPeerConnection == nil {
		cfg.NewPeerConnection = NewPionFactory(defaultICE)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:      cfg,
		signaler: signaler,
		media:    media,
		peers:    make(map[uuid.UUID]*Peer),
		failures: make(map[uuid.UUID]int),
	}
}

// StartLocalStream acquires local media. Existing peers get the new tracks and initiators re-offer.
func (c *Coordinator) StartLocalStream(ctx context.Context, cons Constraints) error {
	if c.media == nil {
		return fmt.Errorf("%w: no media source", ErrMediaUnavailable)
	}
	tracks, err := c.media.Acquire(ctx, cons)
	if err != nil {
		if errors.Is(err, ErrMediaUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.media.Stop()
		return ErrCoordinatorClosed
	}
	c.tracks = append(c.tracks, tracks...)
	var reoffer []*Peer
	for _, p := range c.peers {
		for _, t := range tracks {
			if err := p.AddTrack(t); err != nil {
				c.cfg.Logger.Warn("add track failed", zap.String("remote", p.RemoteID.String()), zap.Error(err))
			}
		}
		if p.Initiator {
			reoffer = append(reoffer, p)
		}
	}
	q := c.quality
	c.mu.Unlock()

	if aware, ok := c.media.(QualityAware); ok && q.Preset != "" {
		_ = aware.ApplyQuality(q)
	}
	for _, p := range reoffer {
		if err := c.offer(p); err != nil {
			c.cfg.Logger.Warn("renegotiate after new tracks failed", zap.String("remote", p.RemoteID.String()), zap.Error(err))
		}
	}
	return nil
}

// Connect creates an initiating peer for remote and sends it an offer.
func (c *Coordinator) Connect(remote uuid.UUID) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	old := c.peers[remote]
	p, err := c.newPeerLocked(remote, true)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.peers[remote] = p
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	return c.offer(p)
}

// HandleOffer answers a remote offer, replacing a failed or closed peer first.
func (c *Coordinator) HandleOffer(from uuid.UUID, offer webrtc.SessionDescription) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	p := c.peers[from]
	var stale *Peer
	if p != nil && isDead(p.ConnectionState()) {
		stale, p = p, nil
	}
	if p == nil {
		np, err := c.newPeerLocked(from, false)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		p = np
		c.peers[from] = p
	}
	c.mu.Unlock()
	if stale != nil {
		_ = stale.Close()
	}

	answer, err := p.HandleOffer(offer)
	if answer.Type != webrtc.SDPTypeAnswer {
		return err
	}
	if sendErr := c.signaler.SendAnswer(from, answer); sendErr != nil {
		return fmt.Errorf("send answer: %w", sendErr)
	}
	return err
}

// HandleAnswer applies a remote answer to our offer.
func (c *Coordinator) HandleAnswer(from uuid.UUID, answer webrtc.SessionDescription) error {
	p := c.peer(from)
	if p == nil {
		return fmt.Errorf("%w: answer from %s without an offer", ErrNegotiation, from)
	}
	return p.HandleAnswer(answer)
}

// HandleCandidate applies or queues a remote ICE candidate. A candidate that arrives before
// the offer creates the answering peer so it can be queued.
func (c *Coordinator) HandleCandidate(from uuid.UUID, candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCoordinatorClosed
	}
	p := c.peers[from]
	if p == nil {
		np, err := c.newPeerLocked(from, false)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		p = np
		c.peers[from] = p
	}
	c.mu.Unlock()
	return p.AddCandidate(candidate)
}

// RemovePeer closes and forgets the peer for remote (participant left).
func (c *Coordinator) RemovePeer(remote uuid.UUID) {
	c.mu.Lock()
	p := c.peers[remote]
	delete(c.peers, remote)
	delete(c.failures, remote)
	c.mu.Unlock()
	if p != nil {
		_ = p.Close()
	}
}

// Peer returns the current peer for remote, or nil.
func (c *Coordinator) Peer(remote uuid.UUID) *Peer {
	return c.peer(remote)
}

func (c *Coordinator) peer(remote uuid.UUID) *Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peers[remote]
}

// Peers returns the ids of all remote peers.
func (c *Coordinator) Peers() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uuid.UUID, 0, len(c.peers))
	for id := range c.peers {
		out = append(out, id)
	}
	return out
}

// StatsReports returns one stats report per live peer connection.
func (c *Coordinator) StatsReports() []webrtc.StatsReport {
	c.mu.Lock()
	peers := make([]*Peer, 0, len(c.peers))
	for _, p := range c.peers {
		peers = append(peers, p)
	}
	c.mu.Unlock()
	out := make([]webrtc.StatsReport, 0, len(peers))
	for _, p := range peers {
		if r := p.Stats(); r != nil {
			out = append(out, r)
		}
	}
	return out
}

// ApplyQuality records s and forwards it to a quality-aware media source.
func (c *Coordinator) ApplyQuality(s netquality.Settings) error {
	c.mu.Lock()
	c.quality = s
	c.mu.Unlock()
	if aware, ok := c.media.(QualityAware); ok {
		return aware.ApplyQuality(s)
	}
	return nil
}

// Quality returns the last applied settings.
func (c *Coordinator) Quality() netquality.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quality
}

// Close stops local media and closes every peer connection.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	peers := c.peers
	c.peers = make(map[uuid.UUID]*Peer)
	c.tracks = nil
	c.mu.Unlock()

	var errs []error
	for _, p := range peers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.media != nil {
		c.media.Stop()
	}
	return errors.Join(errs...)
}

func (c *Coordinator) newPeerLocked(remote uuid.UUID, initiator bool) (*Peer, error) {
	pc, err := c.cfg.NewPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	p := NewPeer(remote, pc, initiator)
	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		if err := c.signaler.SendCandidate(remote, cand.ToJSON()); err != nil {
			c.cfg.Logger.Debug("send candidate failed", zap.String("remote", remote.String()), zap.Error(err))
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.onConnectionState(p, s)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if c.cfg.OnRemoteTrack != nil {
			c.cfg.OnRemoteTrack(remote, track)
		}
	})
	for _, t := range c.tracks {
		if err := p.AddTrack(t); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("add track: %w", err)
		}
	}
	return p, nil
}

func (c *Coordinator) offer(p *Peer) error {
	offer, err := p.CreateOffer()
	if err != nil {
		return err
	}
	if err := c.signaler.SendOffer(p.RemoteID, offer); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	return nil
}

func (c *Coordinator) onConnectionState(p *Peer, s webrtc.PeerConnectionState) {
	p.setConnectionState(s)
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(p.RemoteID, s)
	}
	switch s {
	case webrtc.PeerConnectionStateConnected:
		c.mu.Lock()
		if c.peers[p.RemoteID] == p {
			delete(c.failures, p.RemoteID)
		}
		c.mu.Unlock()
	case webrtc.PeerConnectionStateFailed:
		go c.renegotiate(p)
	}
}

// renegotiate replaces a failed peer. The initiating side builds a fresh connection and
// re-offers; the answering side waits for that offer. Past MaxRenegotiations the peer is
// dropped and the failure reported.
func (c *Coordinator) renegotiate(failed *Peer) {
	remote := failed.RemoteID
	c.mu.Lock()
	if c.closed || c.peers[remote] != failed {
		c.mu.Unlock()
		return
	}
	c.failures[remote]++
	attempts := c.failures[remote]
	if attempts > c.cfg.MaxRenegotiations {
		delete(c.peers, remote)
		delete(c.failures, remote)
		c.mu.Unlock()
		_ = failed.Close()
		c.report(remote, fmt.Errorf("%w: peer %s failed %d times", ErrRenegotiationExhausted, remote, attempts))
		return
	}
	if !failed.Initiator {
		c.mu.Unlock()
		return
	}
	fresh, err := c.newPeerLocked(remote, true)
	if err != nil {
		c.mu.Unlock()
		c.report(remote, err)
		return
	}
	c.peers[remote] = fresh
	c.mu.Unlock()

	_ = failed.Close()
	c.cfg.Logger.Info("renegotiating peer", zap.String("remote", remote.String()), zap.Int("attempt", attempts))
	if err := c.offer(fresh); err != nil {
		c.report(remote, err)
	}
}

func (c *Coordinator) report(remote uuid.UUID, err error) {
	c.cfg.Logger.Warn("peer error", zap.String("remote", remote.String()), zap.Error(err))
	if c.cfg.OnError != nil {
		c.cfg.OnError(remote, err)
	}
}

func isDead(s webrtc.PeerConnectionState) bool {
	return s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed
}
