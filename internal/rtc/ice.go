package rtc

import (
	"github.com/pion/webrtc/v3"
)

var defaultICE = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

// ParseICEServers converts STUN/TURN URLs to ICE servers, falling back to a public STUN server.
func ParseICEServers(urls []string) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		out = append(out, webrtc.ICEServer{URLs: []string{u}})
	}
	if len(out) == 0 {
		return defaultICE
	}
	return out
}

// NewPionFactory returns a constructor for real pion peer connections with default codecs.
func NewPionFactory(iceServers []webrtc.ICEServer) func() (PeerConnection, error) {
	cfg := webrtc.Configuration{ICEServers: iceServers}
	return func() (PeerConnection, error) {
		m := &webrtc.MediaEngine{}
		if err := m.RegisterDefaultCodecs(); err != nil {
			return nil, err
		}
		api := webrtc.NewAPI(webrtc.WithMediaEngine(m))
		pc, err := api.NewPeerConnection(cfg)
		if err != nil {
			return nil, err
		}
		return pc, nil
	}
}
