package netquality

import "github.com/pion/webrtc/v3"

// LinkSample is what can be read from WebRTC statistics.
type LinkSample struct {
	PacketLossPct float64
	JitterMs      float64
	RTTMs         float64
	HasLoss       bool
	HasRTT        bool
}

// FromReports aggregates inbound RTP loss/jitter and the best succeeded candidate-pair RTT
// across all reports. Loss is summed over streams; jitter and RTT take the worst value.
func FromReports(reports []webrtc.StatsReport) LinkSample {
	var (
		out            LinkSample
		lost, received int64
	)
	inbound := func(s webrtc.InboundRTPStreamStats) {
		lost += int64(s.PacketsLost)
		received += int64(s.PacketsReceived)
		out.HasLoss = true
		if j := s.Jitter * 1000; j > out.JitterMs {
			out.JitterMs = j
		}
	}
	pair := func(s webrtc.ICECandidatePairStats) {
		if s.State != webrtc.StatsICECandidatePairStateSucceeded || s.CurrentRoundTripTime <= 0 {
			return
		}
		if rtt := s.CurrentRoundTripTime * 1000; rtt > out.RTTMs {
			out.RTTMs = rtt
		}
		out.HasRTT = true
	}
	for _, report := range reports {
		for _, stat := range report {
			switch s := stat.(type) {
			case webrtc.InboundRTPStreamStats:
				inbound(s)
			case *webrtc.InboundRTPStreamStats:
				inbound(*s)
			case webrtc.ICECandidatePairStats:
				pair(s)
			case *webrtc.ICECandidatePairStats:
				pair(*s)
			}
		}
	}
	if total := lost + received; total > 0 && lost > 0 {
		out.PacketLossPct = float64(lost) / float64(total) * 100
	}
	return out
}
