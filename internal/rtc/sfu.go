package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// ICE candidate targets on the SFU path.
const (
	TargetPublisher  = "publisher"
	TargetSubscriber = "subscriber"
)

// ErrNoStream is returned when subscribing to a session with no published tracks.
var ErrNoStream = errors.New("no_stream")

// RTP buffer size (MTU-friendly). Used with sync.Pool to avoid per-packet allocs.
const rtpBufferSize = 1500

var rtpBufferPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, rtpBufferSize)
		return &b
	},
}

// RecordingSink receives a copy of RTP packets for recording (e.g. to ffmpeg).
// WriteRTP is called from the relay goroutine; implementation must be non-blocking.
type RecordingSink interface {
	WriteRTP(kind webrtc.RTPCodecType, packet []byte)
}

// SFUConfig wires an SFU.
type SFUConfig struct {
	NewPeerConnection func() (PeerConnection, error)
	// OnCandidate delivers a local ICE candidate for a participant's publisher or subscriber connection.
	OnCandidate func(sessionID, userID uuid.UUID, target string, c webrtc.ICECandidateInit)
	// OnSubscriberOffer delivers a re-offer when tracks are added to an existing subscriber.
	OnSubscriberOffer func(sessionID, userID uuid.UUID, offer webrtc.SessionDescription)
	Logger            *zap.Logger
}

// SFU relays one presenter's tracks to every subscriber in a session. It is the
// alternative to the participant mesh for large sessions and the tap used by the recorder.
type SFU struct {
	cfg   SFUConfig
	rooms map[uuid.UUID]*sfuRoom
	mu    sync.RWMutex
	log   *zap.Logger
}

type sfuRoom struct {
	sessionID     uuid.UUID
	publisherID   uuid.UUID
	publisher     *Peer
	tracks        []*relayTrack
	subscribers   map[uuid.UUID]*Peer
	recordingSink RecordingSink
	mu            sync.RWMutex
	log           *zap.Logger
}

type relayTrack struct {
	remote  *webrtc.TrackRemote
	locals  []*webrtc.TrackLocalStaticRTP
	roomRef *sfuRoom
	mu      sync.Mutex
}

// NewSFU creates an SFU.
func NewSFU(cfg SFUConfig) *SFU {
	if cfg.NewPeerConnection == nil {
		cfg.NewPeerConnection = NewPionFactory(defaultICE)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &SFU{
		cfg:   cfg,
		rooms: make(map[uuid.UUID]*sfuRoom),
		log:   cfg.Logger,
	}
}

func (s *SFU) getOrCreateRoom(sessionID uuid.UUID) *sfuRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[sessionID]; ok {
		return r
	}
	r := &sfuRoom{
		sessionID:   sessionID,
		subscribers: make(map[uuid.UUID]*Peer),
		log:         s.log.With(zap.String("session_id", sessionID.String())),
	}
	s.rooms[sessionID] = r
	return r
}

func (s *SFU) getRoom(sessionID uuid.UUID) *sfuRoom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[sessionID]
}

func (s *SFU) newPeer(sessionID, userID uuid.UUID, target string, initiator bool) (*Peer, PeerConnection, error) {
	pc, err := s.cfg.NewPeerConnection()
	if err != nil {
		return nil, nil, fmt.Errorf("new peer connection: %w", err)
	}
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || s.cfg.OnCandidate == nil {
			return
		}
		s.cfg.OnCandidate(sessionID, userID, target, c.ToJSON())
	})
	p := NewPeer(userID, pc, initiator)
	pc.OnConnectionStateChange(p.setConnectionState)
	return p, pc, nil
}

// Publish accepts the presenter's offer and returns the SFU answer. A previous publisher
// in the session is replaced.
func (s *SFU) Publish(sessionID, publisherID uuid.UUID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	r := s.getOrCreateRoom(sessionID)

	r.mu.Lock()
	old := r.publisher
	r.publisher = nil
	r.tracks = nil
	r.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	p, pc, err := s.newPeer(sessionID, publisherID, TargetPublisher, false)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		relay := &relayTrack{remote: track, roomRef: r}
		r.mu.Lock()
		if r.publisher != p {
			r.mu.Unlock()
			return
		}
		r.tracks = append(r.tracks, relay)
		r.mu.Unlock()
		s.relayTrackToSubscribers(r, relay)
		go relay.readAndForward()
	})

	r.mu.Lock()
	r.publisher = p
	r.publisherID = publisherID
	r.mu.Unlock()

	answer, err := p.HandleOffer(offer)
	if answer.Type != webrtc.SDPTypeAnswer {
		s.ClosePublisher(sessionID)
		return webrtc.SessionDescription{}, err
	}
	if err != nil {
		r.log.Warn("publisher candidates rejected", zap.Error(err))
	}
	r.log.Info("publisher attached", zap.String("user_id", publisherID.String()))
	return answer, nil
}

func (rt *relayTrack) readAndForward() {
	for {
		ptr := rtpBufferPool.Get().(*[]byte)
		buf := *ptr
		n, _, err := rt.remote.Read(buf)
		if err != nil {
			rtpBufferPool.Put(ptr)
			return
		}
		// Copy subscribers under lock, write without it so one slow subscriber doesn't block others.
		rt.mu.Lock()
		locals := make([]*webrtc.TrackLocalStaticRTP, len(rt.locals))
		copy(locals, rt.locals)
		rt.mu.Unlock()
		for _, local := range locals {
			_, _ = local.Write(buf[:n])
		}
		// The sink may be async, so it gets its own copy rather than a pooled buffer.
		if rt.roomRef != nil {
			rt.roomRef.mu.RLock()
			sink := rt.roomRef.recordingSink
			rt.roomRef.mu.RUnlock()
			if sink != nil {
				packetCopy := make([]byte, n)
				copy(packetCopy, buf[:n])
				sink.WriteRTP(rt.remote.Kind(), packetCopy)
			}
		}
		rtpBufferPool.Put(ptr)
	}
}

func (rt *relayTrack) attach(p *Peer) error {
	local, err := webrtc.NewTrackLocalStaticRTP(rt.remote.Codec().RTPCodecCapability, rt.remote.ID(), rt.remote.StreamID())
	if err != nil {
		return err
	}
	if err := p.AddTrack(local); err != nil {
		return err
	}
	rt.mu.Lock()
	rt.locals = append(rt.locals, local)
	rt.mu.Unlock()
	return nil
}

func (s *SFU) relayTrackToSubscribers(r *sfuRoom, relay *relayTrack) {
	r.mu.RLock()
	subs := make(map[uuid.UUID]*Peer, len(r.subscribers))
	for id, p := range r.subscribers {
		subs[id] = p
	}
	r.mu.RUnlock()

	for userID, sub := range subs {
		if err := relay.attach(sub); err != nil {
			r.log.Warn("relay track to subscriber failed", zap.String("user_id", userID.String()), zap.Error(err))
			continue
		}
		offer, err := sub.CreateOffer()
		if err != nil {
			r.log.Debug("subscriber re-offer deferred", zap.String("user_id", userID.String()), zap.Error(err))
			continue
		}
		if s.cfg.OnSubscriberOffer != nil {
			s.cfg.OnSubscriberOffer(r.sessionID, userID, offer)
		}
	}
}

// Subscribe creates a receive-only connection for userID carrying every published track
// and returns the SFU offer.
func (s *SFU) Subscribe(sessionID, userID uuid.UUID) (webrtc.SessionDescription, error) {
	r := s.getRoom(sessionID)
	if r == nil {
		return webrtc.SessionDescription{}, ErrNoStream
	}
	r.mu.RLock()
	if r.publisher == nil || len(r.tracks) == 0 {
		r.mu.RUnlock()
		return webrtc.SessionDescription{}, ErrNoStream
	}
	tracks := append([]*relayTrack(nil), r.tracks...)
	r.mu.RUnlock()

	p, _, err := s.newPeer(sessionID, userID, TargetSubscriber, true)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	for _, relay := range tracks {
		if err := relay.attach(p); err != nil {
			r.log.Warn("attach relay track failed", zap.Error(err))
		}
	}
	offer, err := p.CreateOffer()
	if err != nil {
		_ = p.Close()
		return webrtc.SessionDescription{}, err
	}

	r.mu.Lock()
	old := r.subscribers[userID]
	r.subscribers[userID] = p
	r.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return offer, nil
}

// HandleSubscriberAnswer applies a subscriber's answer to the SFU offer.
func (s *SFU) HandleSubscriberAnswer(sessionID, userID uuid.UUID, answer webrtc.SessionDescription) error {
	p := s.subscriber(sessionID, userID)
	if p == nil {
		return fmt.Errorf("%w: no subscriber connection for %s", ErrNegotiation, userID)
	}
	return p.HandleAnswer(answer)
}

func (s *SFU) subscriber(sessionID, userID uuid.UUID) *Peer {
	r := s.getRoom(sessionID)
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subscribers[userID]
}

// AddCandidate applies a participant's ICE candidate to their publisher or subscriber connection.
// Candidates are queued by the peer until its remote description is set.
func (s *SFU) AddCandidate(sessionID, userID uuid.UUID, target string, c webrtc.ICECandidateInit) error {
	r := s.getRoom(sessionID)
	if r == nil {
		return ErrNoStream
	}
	var p *Peer
	r.mu.RLock()
	switch target {
	case TargetPublisher:
		if r.publisherID == userID {
			p = r.publisher
		}
	case TargetSubscriber:
		p = r.subscribers[userID]
	default:
		r.mu.RUnlock()
		return fmt.Errorf("unknown ice target %q", target)
	}
	r.mu.RUnlock()
	if p == nil {
		return fmt.Errorf("%w: no %s connection for %s", ErrNegotiation, target, userID)
	}
	return p.AddCandidate(c)
}

// Unsubscribe closes a subscriber connection. Call when the participant leaves.
func (s *SFU) Unsubscribe(sessionID, userID uuid.UUID) {
	r := s.getRoom(sessionID)
	if r == nil {
		return
	}
	r.mu.Lock()
	p, ok := r.subscribers[userID]
	delete(r.subscribers, userID)
	r.mu.Unlock()
	if ok {
		_ = p.Close()
	}
}

// ClosePublisher closes the publisher connection (e.g. when the presenter leaves).
func (s *SFU) ClosePublisher(sessionID uuid.UUID) {
	r := s.getRoom(sessionID)
	if r == nil {
		return
	}
	r.mu.Lock()
	p := r.publisher
	r.publisher = nil
	r.publisherID = uuid.Nil
	r.tracks = nil
	r.mu.Unlock()
	if p != nil {
		_ = p.Close()
	}
}

// Publisher returns the current publisher of a session.
func (s *SFU) Publisher(sessionID uuid.UUID) (uuid.UUID, bool) {
	r := s.getRoom(sessionID)
	if r == nil {
		return uuid.Nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publisherID, r.publisher != nil
}

// SubscriberCount returns the number of subscriber connections in a session.
func (s *SFU) SubscriberCount(sessionID uuid.UUID) int {
	r := s.getRoom(sessionID)
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// CloseRoom closes every connection of a session and forgets it.
func (s *SFU) CloseRoom(sessionID uuid.UUID) {
	s.mu.Lock()
	r, ok := s.rooms[sessionID]
	delete(s.rooms, sessionID)
	s.mu.Unlock()
	if !ok {
		return
	}
	r.mu.Lock()
	peers := make([]*Peer, 0, len(r.subscribers)+1)
	if r.publisher != nil {
		peers = append(peers, r.publisher)
	}
	for _, p := range r.subscribers {
		peers = append(peers, p)
	}
	r.publisher = nil
	r.tracks = nil
	r.subscribers = map[uuid.UUID]*Peer{}
	r.recordingSink = nil
	r.mu.Unlock()
	for _, p := range peers {
		_ = p.Close()
	}
}

// TrackInfo describes a track for building recording SDP (codec, kind).
type TrackInfo struct {
	Kind      webrtc.RTPCodecType
	MimeType  string
	ClockRate uint32
}

// GetTrackInfo returns current publisher track info for the session.
func (s *SFU) GetTrackInfo(sessionID uuid.UUID) []TrackInfo {
	r := s.getRoom(sessionID)
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.tracks) == 0 {
		return nil
	}
	out := make([]TrackInfo, 0, len(r.tracks))
	for _, relay := range r.tracks {
		c := relay.remote.Codec()
		out = append(out, TrackInfo{
			Kind:      relay.remote.Kind(),
			MimeType:  c.MimeType,
			ClockRate: c.ClockRate,
		})
	}
	return out
}

// RegisterRecordingSink sets the sink that receives a copy of RTP for recording. Only one sink per session.
func (s *SFU) RegisterRecordingSink(sessionID uuid.UUID, sink RecordingSink) {
	r := s.getRoom(sessionID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordingSink = sink
}

// UnregisterRecordingSink removes the recording sink for the session.
func (s *SFU) UnregisterRecordingSink(sessionID uuid.UUID) {
	r := s.getRoom(sessionID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordingSink = nil
}
