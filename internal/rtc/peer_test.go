package rtc_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnx/live-backend/internal/rtc"
)

func TestPeer_QueuesCandidatesUntilRemoteDescription(t *testing.T) {
	// Setup
	pc := &fakePC{}
	p := rtc.NewPeer(uuid.New(), pc, false)

	// Execute
	require.NoError(t, p.AddCandidate(candidate("c1")))
	require.NoError(t, p.AddCandidate(candidate("c2")))
	require.NoError(t, p.AddCandidate(candidate("c3")))
	queued := p.PendingCandidates()
	answer, err := p.HandleOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "remote"})
	require.NoError(t, err)
	require.NoError(t, p.AddCandidate(candidate("c4")))

	// Assert
	assert.Equal(t, 3, queued)
	assert.Equal(t, 0, p.PendingCandidates())
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.Equal(t, []string{"c1", "c2", "c3", "c4"}, pc.appliedCandidates())
}

func TestPeer_AnswerWithoutOfferIsNegotiationError(t *testing.T) {
	// Setup
	p := rtc.NewPeer(uuid.New(), &fakePC{}, true)

	// Execute
	err := p.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "x"})

	// Assert
	assert.ErrorIs(t, err, rtc.ErrNegotiation)
}

func TestPeer_OfferWhileOfferingIsNegotiationError(t *testing.T) {
	// Setup
	p := rtc.NewPeer(uuid.New(), &fakePC{}, true)
	_, err := p.CreateOffer()
	require.NoError(t, err)

	// Execute
	_, offerErr := p.HandleOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "x"})
	_, secondErr := p.CreateOffer()

	// Assert
	assert.ErrorIs(t, offerErr, rtc.ErrNegotiation)
	assert.ErrorIs(t, secondErr, rtc.ErrNegotiation)
}

func TestPeer_OfferAnswerRoundTrip(t *testing.T) {
	// Setup
	pc := &fakePC{}
	p := rtc.NewPeer(uuid.New(), pc, true)

	// Execute
	offer, err := p.CreateOffer()
	require.NoError(t, err)
	require.NoError(t, p.AddCandidate(candidate("early")))
	err = p.HandleAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "remote"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	assert.Equal(t, []string{"early"}, pc.appliedCandidates())
	_, err = p.CreateOffer()
	assert.NoError(t, err, "stable again after the answer")
}

func TestPeer_ClosedRejectsOperations(t *testing.T) {
	// Setup
	pc := &fakePC{}
	p := rtc.NewPeer(uuid.New(), pc, true)

	// Execute
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	// Assert
	assert.True(t, pc.isClosed())
	assert.ErrorIs(t, p.AddCandidate(candidate("c")), rtc.ErrPeerClosed)
	_, err := p.CreateOffer()
	assert.ErrorIs(t, err, rtc.ErrPeerClosed)
	assert.Equal(t, webrtc.PeerConnectionStateClosed, p.ConnectionState())
}

func TestParseICEServers(t *testing.T) {
	assert.Equal(t, "stun:stun.l.google.com:19302", rtc.ParseICEServers(nil)[0].URLs[0])

	servers := rtc.ParseICEServers([]string{"stun:a:3478", "", "turn:b:3478"})
	require.Len(t, servers, 2)
	assert.Equal(t, "turn:b:3478", servers[1].URLs[0])
}
