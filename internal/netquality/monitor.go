package netquality

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// DefaultInterval is the sampling period.
const DefaultInterval = 2 * time.Second

// StatsSource exposes WebRTC statistics, one report per peer connection.
type StatsSource interface {
	StatsReports() []webrtc.StatsReport
}

// Applier receives the settings chosen by auto-optimize or a manual override.
type Applier interface {
	ApplyQuality(Settings) error
}

// BandwidthProber measures download bandwidth in kbps.
type BandwidthProber interface {
	Probe(ctx context.Context) (float64, error)
}

// MonitorConfig wires a Monitor.
type MonitorConfig struct {
	Interval time.Duration
	Prober   BandwidthProber
	Source   StatsSource
	Applier  Applier
	Logger   *zap.Logger
	// OnSample is called after every measurement, outside the monitor lock.
	OnSample func(Stats, Settings)
}

// Monitor samples link health and, with auto-optimize on, pushes the matching preset.
type Monitor struct {
	cfg MonitorConfig

	mu          sync.Mutex
	stats       Stats
	settings    Settings
	auto        bool
	pingLatency float64
}

// NewMonitor creates a monitor with auto-optimize enabled and the medium preset applied.
func NewMonitor(cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Monitor{cfg: cfg, auto: true, settings: presets[PresetMedium]}
}

// Run samples every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	m.Sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample(ctx)
		}
	}
}

// Sample takes one measurement and applies a new preset when auto-optimize is on and it changed.
func (m *Monitor) Sample(ctx context.Context) Stats {
	bw := float64(FallbackBandwidthKbps)
	if m.cfg.Prober != nil {
		if v, err := m.cfg.Prober.Probe(ctx); err == nil {
			bw = v
		} else {
			m.cfg.Logger.Debug("bandwidth probe failed", zap.Error(err))
		}
	}
	var link LinkSample
	if m.cfg.Source != nil {
		link = FromReports(m.cfg.Source.StatsReports())
	}

	m.mu.Lock()
	s := Stats{
		BandwidthKbps: bw,
		LatencyMs:     m.stats.LatencyMs,
		PacketLossPct: m.stats.PacketLossPct,
		JitterMs:      m.stats.JitterMs,
		SampledAt:     time.Now().UTC(),
	}
	if link.HasRTT {
		s.LatencyMs = link.RTTMs
	} else if m.pingLatency > 0 {
		s.LatencyMs = m.pingLatency
	}
	if link.HasLoss {
		s.PacketLossPct = link.PacketLossPct
		s.JitterMs = link.JitterMs
	}
	s = Evaluate(s)
	m.stats = s
	var apply *Settings
	if m.auto {
		rec := Recommend(s)
		if rec != m.settings {
			m.settings = rec
			apply = &rec
		}
	}
	settings := m.settings
	m.mu.Unlock()

	if apply != nil {
		m.push(*apply)
	}
	if m.cfg.OnSample != nil {
		m.cfg.OnSample(s, settings)
	}
	return s
}

// RecordPing feeds a round trip measured over the signaling channel (ping-test echo).
// It is used as latency when no candidate-pair RTT is available.
func (m *Monitor) RecordPing(rtt time.Duration) {
	m.mu.Lock()
	m.pingLatency = float64(rtt) / float64(time.Millisecond)
	m.mu.Unlock()
}

// SetManual applies s and disables auto-optimize until EnableAuto.
func (m *Monitor) SetManual(s Settings) error {
	m.mu.Lock()
	m.auto = false
	m.settings = s
	m.mu.Unlock()
	return m.push(s)
}

// EnableAuto turns auto-optimize back on; the next sample decides the preset.
func (m *Monitor) EnableAuto() {
	m.mu.Lock()
	m.auto = true
	m.mu.Unlock()
}

// AutoOptimize reports whether auto-optimize is on.
func (m *Monitor) AutoOptimize() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.auto
}

// Stats returns the latest measurement.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Settings returns the settings currently in effect.
func (m *Monitor) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

func (m *Monitor) push(s Settings) error {
	if m.cfg.Applier == nil {
		return nil
	}
	if err := m.cfg.Applier.ApplyQuality(s); err != nil {
		m.cfg.Logger.Warn("apply quality failed", zap.String("preset", string(s.Preset)), zap.Error(err))
		return err
	}
	m.cfg.Logger.Info("quality preset applied",
		zap.String("preset", string(s.Preset)),
		zap.String("resolution", string(s.Resolution)),
		zap.Int("fps", s.FrameRate),
	)
	return nil
}
