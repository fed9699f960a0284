package netquality_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnx/live-backend/internal/netquality"
)

type fixedProber struct {
	kbps float64
	err  error
}

func (p fixedProber) Probe(context.Context) (float64, error) { return p.kbps, p.err }

type fixedSource struct{ reports []webrtc.StatsReport }

func (s fixedSource) StatsReports() []webrtc.StatsReport { return s.reports }

type recordingApplier struct {
	mu      sync.Mutex
	applied []netquality.Settings
}

func (a *recordingApplier) ApplyQuality(s netquality.Settings) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, s)
	return nil
}

func (a *recordingApplier) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied)
}

func report(lost int32, received uint32, jitterSec, rttSec float64) webrtc.StatsReport {
	return webrtc.StatsReport{
		"in": webrtc.InboundRTPStreamStats{PacketsLost: lost, PacketsReceived: received, Jitter: jitterSec},
		"pair": webrtc.ICECandidatePairStats{
			State:                webrtc.StatsICECandidatePairStateSucceeded,
			CurrentRoundTripTime: rttSec,
		},
	}
}

func TestFromReports(t *testing.T) {
	link := netquality.FromReports([]webrtc.StatsReport{report(5, 995, 0.010, 0.120)})

	assert.True(t, link.HasLoss)
	assert.True(t, link.HasRTT)
	assert.InDelta(t, 0.5, link.PacketLossPct, 0.0001)
	assert.InDelta(t, 10, link.JitterMs, 0.0001)
	assert.InDelta(t, 120, link.RTTMs, 0.0001)
}

func TestMonitor_AutoOptimizeAppliesTierPreset(t *testing.T) {
	// Setup
	applier := &recordingApplier{}
	m := netquality.NewMonitor(netquality.MonitorConfig{
		Prober:  fixedProber{kbps: 1200},
		Source:  fixedSource{reports: []webrtc.StatsReport{report(5, 995, 0.010, 0.120)}},
		Applier: applier,
	})

	// Execute
	s := m.Sample(context.Background())
	m.Sample(context.Background())

	// Assert
	assert.Equal(t, netquality.TierGood, s.Tier)
	assert.Equal(t, netquality.PresetHigh, m.Settings().Preset)
	assert.Equal(t, 1, applier.count(), "unchanged preset is not re-applied")
}

func TestMonitor_ProbeFailureUsesFallbackBandwidth(t *testing.T) {
	m := netquality.NewMonitor(netquality.MonitorConfig{Prober: fixedProber{err: errors.New("offline")}})

	s := m.Sample(context.Background())

	assert.Equal(t, float64(netquality.FallbackBandwidthKbps), s.BandwidthKbps)
}

func TestMonitor_ManualOverrideDisablesAuto(t *testing.T) {
	// Setup
	applier := &recordingApplier{}
	m := netquality.NewMonitor(netquality.MonitorConfig{Prober: fixedProber{kbps: 100}, Applier: applier})
	ultra, err := netquality.PresetSettings(netquality.PresetUltra)
	require.NoError(t, err)

	// Execute
	require.NoError(t, m.SetManual(ultra))
	m.Sample(context.Background())

	// Assert
	assert.False(t, m.AutoOptimize())
	assert.Equal(t, netquality.PresetUltra, m.Settings().Preset)
	assert.Equal(t, 1, applier.count())

	m.EnableAuto()
	m.Sample(context.Background())
	assert.Equal(t, netquality.PresetMedium, m.Settings().Preset)
	assert.Equal(t, 2, applier.count())
}

func TestMonitor_PingLatencyUsedWithoutRTT(t *testing.T) {
	m := netquality.NewMonitor(netquality.MonitorConfig{Prober: fixedProber{kbps: 5000}})
	m.RecordPing(250 * time.Millisecond)

	s := m.Sample(context.Background())

	assert.InDelta(t, 250, s.LatencyMs, 0.001)
	assert.Equal(t, 80, s.Score)
}

func TestRecommend_DegradesLossyLinks(t *testing.T) {
	s := netquality.Recommend(netquality.Stats{BandwidthKbps: 5000, LatencyMs: 20, PacketLossPct: 3.5})

	assert.Equal(t, netquality.PresetHigh, s.Preset)
	assert.Equal(t, 15, s.FrameRate)
	assert.Equal(t, netquality.BitrateLow, s.Bitrate)
	assert.Equal(t, 1500, s.TargetBitrateKbps())
}

func TestPresetBitrates(t *testing.T) {
	ultra, _ := netquality.PresetSettings(netquality.PresetUltra)
	low, _ := netquality.PresetSettings(netquality.PresetLow)

	assert.Equal(t, 80000, ultra.TargetBitrateKbps())
	assert.Equal(t, 250, low.TargetBitrateKbps())
	assert.False(t, low.NoiseSuppression)
	assert.False(t, low.AutoGainControl)
	_, err := netquality.PresetSettings("cinema")
	assert.Error(t, err)
}

func TestProbe_RoundTrip(t *testing.T) {
	// Setup
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/network/probe", netquality.ProbeHandler(64*1024))
	srv := httptest.NewServer(r)
	defer srv.Close()

	// Execute
	kbps, err := netquality.NewHTTPProber(srv.URL, 32*1024, srv.Client()).Probe(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Greater(t, kbps, 0.0)
}

func TestProbeHandler_ClampsAndValidates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/probe", netquality.ProbeHandler(1024))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe?size=999999", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1024, w.Body.Len())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe?size=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
