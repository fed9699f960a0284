package rtc_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/learnx/live-backend/internal/rtc"
)

type fakePC struct {
	mu         sync.Mutex
	id         int
	offers     int
	remote     []webrtc.SessionDescription
	local      []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	tracks     []webrtc.TrackLocal
	onState    func(webrtc.PeerConnectionState)
	closed     bool
}

func (f *fakePC) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d-%d", f.id, f.offers)}, nil
}

func (f *fakePC) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", f.id)}, nil
}

func (f *fakePC) SetLocalDescription(d webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.local = append(f.local, d)
	return nil
}

func (f *fakePC) SetRemoteDescription(d webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote = append(f.remote, d)
	return nil
}

func (f *fakePC) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakePC) AddTrack(t webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = append(f.tracks, t)
	return nil, nil
}

func (f *fakePC) OnICECandidate(func(*webrtc.ICECandidate)) {}

func (f *fakePC) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = fn
}

func (f *fakePC) OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {}

func (f *fakePC) GetStats() webrtc.StatsReport { return webrtc.StatsReport{} }

func (f *fakePC) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePC) fire(s webrtc.PeerConnectionState) {
	f.mu.Lock()
	fn := f.onState
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (f *fakePC) appliedCandidates() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.candidates))
	for _, c := range f.candidates {
		out = append(out, c.Candidate)
	}
	return out
}

func (f *fakePC) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakePC) trackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tracks)
}

type pcFactory struct {
	mu  sync.Mutex
	pcs []*fakePC
}

func (p *pcFactory) New() (rtc.PeerConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pc := &fakePC{id: len(p.pcs)}
	p.pcs = append(p.pcs, pc)
	return pc, nil
}

func (p *pcFactory) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pcs)
}

func (p *pcFactory) last() *fakePC {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pcs[len(p.pcs)-1]
}

type sent struct {
	kind string
	to   uuid.UUID
	sdp  webrtc.SessionDescription
}

type fakeSignaler struct {
	mu   sync.Mutex
	msgs []sent
}

func (s *fakeSignaler) SendOffer(to uuid.UUID, sdp webrtc.SessionDescription) error {
	s.record(sent{kind: "offer", to: to, sdp: sdp})
	return nil
}

func (s *fakeSignaler) SendAnswer(to uuid.UUID, sdp webrtc.SessionDescription) error {
	s.record(sent{kind: "answer", to: to, sdp: sdp})
	return nil
}

func (s *fakeSignaler) SendCandidate(to uuid.UUID, _ webrtc.ICECandidateInit) error {
	s.record(sent{kind: "candidate", to: to})
	return nil
}

func (s *fakeSignaler) record(m sent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
}

func (s *fakeSignaler) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.msgs {
		if m.kind == kind {
			n++
		}
	}
	return n
}

type fakeMedia struct {
	mu      sync.Mutex
	err     error
	tracks  []webrtc.TrackLocal
	stopped bool
}

func (m *fakeMedia) Acquire(context.Context, rtc.Constraints) ([]webrtc.TrackLocal, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tracks, nil
}

func (m *fakeMedia) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *fakeMedia) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

var errCameraBusy = errors.New("camera busy")

func candidate(s string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s}
}
