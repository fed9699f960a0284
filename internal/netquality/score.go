package netquality

import "time"

// Tier is the coarse connection quality derived from a Score.
type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierFair      Tier = "fair"
	TierPoor      Tier = "poor"
)

// Stats is one network measurement.
type Stats struct {
	BandwidthKbps float64   `json:"bandwidth"`
	LatencyMs     float64   `json:"latency"`
	PacketLossPct float64   `json:"packetLoss"`
	JitterMs      float64   `json:"jitter"`
	Score         int       `json:"score"`
	Tier          Tier      `json:"quality"`
	SampledAt     time.Time `json:"sampledAt"`
}

type step struct {
	bound   float64
	penalty int
}

// Penalty tables. Weights: bandwidth 40, latency 25, loss 25, jitter 10.
var (
	bandwidthSteps = []step{{250, 40}, {500, 30}, {1000, 20}, {2000, 10}} // below bound
	latencySteps   = []step{{300, 25}, {200, 20}, {150, 15}, {100, 10}, {50, 5}}
	lossSteps      = []step{{5, 25}, {3, 20}, {1, 15}, {0.5, 10}, {0.1, 5}}
	jitterSteps    = []step{{50, 10}, {30, 8}, {20, 5}, {10, 3}}
)

func below(v float64, steps []step) int {
	for _, s := range steps {
		if v < s.bound {
			return s.penalty
		}
	}
	return 0
}

func above(v float64, steps []step) int {
	for _, s := range steps {
		if v > s.bound {
			return s.penalty
		}
	}
	return 0
}

// Score returns the 0-100 composite for the four measurements.
func Score(bandwidthKbps, latencyMs, lossPct, jitterMs float64) int {
	score := 100 -
		below(bandwidthKbps, bandwidthSteps) -
		above(latencyMs, latencySteps) -
		above(lossPct, lossSteps) -
		above(jitterMs, jitterSteps)
	if score < 0 {
		return 0
	}
	return score
}

// TierFor maps a score to its tier.
func TierFor(score int) Tier {
	switch {
	case score >= 85:
		return TierExcellent
	case score >= 70:
		return TierGood
	case score >= 50:
		return TierFair
	default:
		return TierPoor
	}
}

// Evaluate fills Score and Tier from the raw measurements.
func Evaluate(s Stats) Stats {
	s.Score = Score(s.BandwidthKbps, s.LatencyMs, s.PacketLossPct, s.JitterMs)
	s.Tier = TierFor(s.Score)
	return s
}
