package recorder

import (
	"testing"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"

	"github.com/learnx/live-backend/internal/rtc"
)

func TestBuildSDP(t *testing.T) {
	// Setup
	tracks := []rtc.TrackInfo{
		{Kind: webrtc.RTPCodecTypeVideo, MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		{Kind: webrtc.RTPCodecTypeAudio, MimeType: webrtc.MimeTypeOpus, ClockRate: 48000},
		{Kind: webrtc.RTPCodecTypeVideo, MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
	}

	// Execute
	sdp := buildSDP(tracks, 5004, 5006)

	// Assert
	assert.Contains(t, sdp, "m=video 5004 RTP/AVP 96\r\na=rtpmap:96 VP8/90000\r\n")
	assert.Contains(t, sdp, "m=audio 5006 RTP/AVP 97\r\na=rtpmap:97 opus/48000/2\r\n")
	assert.Equal(t, 1, countOf(sdp, "m=video"), "one media section per kind")
}

func TestRewritePayloadType(t *testing.T) {
	packet := []byte{0x80, 0xE0 | 0x6F, 0x01, 0x02}

	out := rewritePayloadType(packet, payloadTypeAudio)

	assert.Equal(t, byte(0x80|payloadTypeAudio), out[1], "marker bit kept, payload type replaced")
	assert.Equal(t, byte(0xEF), packet[1], "input untouched")
	assert.Equal(t, packet[2:], out[2:])
}

func countOf(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}
