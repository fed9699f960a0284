package netquality

import "fmt"

// Resolution is a capture resolution label.
type Resolution string

const (
	Res480p  Resolution = "480p"
	Res720p  Resolution = "720p"
	Res1080p Resolution = "1080p"
	Res4K    Resolution = "4K"
)

// Dimensions returns width and height in pixels.
func (r Resolution) Dimensions() (int, int) {
	switch r {
	case Res4K:
		return 3840, 2160
	case Res1080p:
		return 1920, 1080
	case Res720p:
		return 1280, 720
	default:
		return 854, 480
	}
}

// BitrateLevel selects a column of the bitrate table.
type BitrateLevel string

const (
	BitrateLow    BitrateLevel = "low"
	BitrateMedium BitrateLevel = "medium"
	BitrateHigh   BitrateLevel = "high"
	BitrateUltra  BitrateLevel = "ultra"
)

var bitrateTable = map[Resolution]map[BitrateLevel]int{
	Res480p:  {BitrateLow: 500, BitrateMedium: 800, BitrateHigh: 1200, BitrateUltra: 1500},
	Res720p:  {BitrateLow: 1200, BitrateMedium: 2500, BitrateHigh: 4000, BitrateUltra: 5000},
	Res1080p: {BitrateLow: 3000, BitrateMedium: 6000, BitrateHigh: 8000, BitrateUltra: 12000},
	Res4K:    {BitrateLow: 8000, BitrateMedium: 16000, BitrateHigh: 25000, BitrateUltra: 40000},
}

// Preset names one of the fixed quality profiles.
type Preset string

const (
	PresetUltra  Preset = "ultra"
	PresetHigh   Preset = "high"
	PresetMedium Preset = "medium"
	PresetLow    Preset = "low"
)

// Settings is the media configuration pushed to the peer coordinator.
type Settings struct {
	Preset           Preset       `json:"preset"`
	Resolution       Resolution   `json:"resolution"`
	FrameRate        int          `json:"frameRate"`
	Bitrate          BitrateLevel `json:"bitrate"`
	Codec            string       `json:"codec"`
	NoiseSuppression bool         `json:"noiseSuppression"`
	EchoCancellation bool         `json:"echoCancellation"`
	AutoGainControl  bool         `json:"autoGainControl"`
}

var presets = map[Preset]Settings{
	PresetUltra:  {Preset: PresetUltra, Resolution: Res4K, FrameRate: 60, Bitrate: BitrateUltra, Codec: "AV1", NoiseSuppression: true, EchoCancellation: true, AutoGainControl: true},
	PresetHigh:   {Preset: PresetHigh, Resolution: Res1080p, FrameRate: 30, Bitrate: BitrateHigh, Codec: "VP9", NoiseSuppression: true, EchoCancellation: true, AutoGainControl: true},
	PresetMedium: {Preset: PresetMedium, Resolution: Res720p, FrameRate: 30, Bitrate: BitrateMedium, Codec: "H264", NoiseSuppression: true, EchoCancellation: true, AutoGainControl: true},
	PresetLow:    {Preset: PresetLow, Resolution: Res480p, FrameRate: 15, Bitrate: BitrateLow, Codec: "H264", NoiseSuppression: false, EchoCancellation: true, AutoGainControl: false},
}

// PresetSettings returns the fixed settings for p.
func PresetSettings(p Preset) (Settings, error) {
	s, ok := presets[p]
	if !ok {
		return Settings{}, fmt.Errorf("unknown preset %q", p)
	}
	return s, nil
}

// PresetFor maps a tier to its preset.
func PresetFor(t Tier) Preset {
	switch t {
	case TierExcellent:
		return PresetUltra
	case TierGood:
		return PresetHigh
	case TierFair:
		return PresetMedium
	default:
		return PresetLow
	}
}

// Recommend returns the settings for the measured stats. Lossy or slow links
// keep the tier's resolution but drop to 15 fps at the low bitrate column.
func Recommend(s Stats) Settings {
	if s.Tier == "" {
		s = Evaluate(s)
	}
	out := presets[PresetFor(s.Tier)]
	if s.PacketLossPct > 2 || s.LatencyMs > 200 {
		out.FrameRate = 15
		out.Bitrate = BitrateLow
	}
	return out
}

// TargetBitrateKbps estimates the video bitrate for s, scaled by frame rate relative to 30 fps.
func (s Settings) TargetBitrateKbps() int {
	row, ok := bitrateTable[s.Resolution]
	if !ok {
		row = bitrateTable[Res480p]
	}
	base, ok := row[s.Bitrate]
	if !ok {
		base = row[BitrateMedium]
	}
	fps := s.FrameRate
	if fps <= 0 {
		fps = 30
	}
	return base * fps / 30
}
