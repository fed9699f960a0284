package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/learnx/live-backend/internal/models"
	"github.com/learnx/live-backend/internal/netquality"
)

// ErrMediaUnavailable is returned when local media cannot be acquired. Callers may retry
// or continue without the failed media kind.
var ErrMediaUnavailable = errors.New("media unavailable")

// Constraints selects which local media to acquire.
type Constraints struct {
	Video bool
	Audio bool
}

// ConstraintsFor returns the default media policy for role: teachers send video and audio,
// students audio only.
func ConstraintsFor(role models.Role) Constraints {
	if role == models.RoleTeacher {
		return Constraints{Video: true, Audio: true}
	}
	return Constraints{Audio: true}
}

// MediaSource produces local tracks.
type MediaSource interface {
	Acquire(ctx context.Context, c Constraints) ([]webrtc.TrackLocal, error)
	Stop()
}

// QualityAware is implemented by sources that can follow a quality preset.
type QualityAware interface {
	ApplyQuality(netquality.Settings) error
}

// opus DTX silence frame
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SyntheticSource generates placeholder VP8/Opus samples for headless clients.
// Video frames are not decodable; they exercise the transport at the preset bitrate.
type SyntheticSource struct {
	streamID string

	mu         sync.Mutex
	frameRate  int
	frameBytes int
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewSyntheticSource creates a source whose tracks share streamID.
func NewSyntheticSource(streamID string) *SyntheticSource {
	s := &SyntheticSource{streamID: streamID}
	medium, _ := netquality.PresetSettings(netquality.PresetMedium)
	s.configure(medium)
	return s
}

func (s *SyntheticSource) configure(q netquality.Settings) {
	fps := q.FrameRate
	if fps <= 0 {
		fps = 30
	}
	s.frameRate = fps
	s.frameBytes = q.TargetBitrateKbps() * 1000 / 8 / fps
}

// Acquire creates the requested tracks and starts writing samples until Stop.
func (s *SyntheticSource) Acquire(ctx context.Context, c Constraints) ([]webrtc.TrackLocal, error) {
	if !c.Video && !c.Audio {
		return nil, fmt.Errorf("%w: no media requested", ErrMediaUnavailable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil, fmt.Errorf("%w: source already started", ErrMediaUnavailable)
	}
	runCtx, cancel := context.WithCancel(ctx)
	var tracks []webrtc.TrackLocal
	if c.Video {
		video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", s.streamID)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
		}
		tracks = append(tracks, video)
		s.wg.Add(1)
		go s.writeVideo(runCtx, video)
	}
	if c.Audio {
		audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", s.streamID)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
		}
		tracks = append(tracks, audio)
		s.wg.Add(1)
		go s.writeAudio(runCtx, audio)
	}
	s.cancel = cancel
	return tracks, nil
}

func (s *SyntheticSource) writeVideo(ctx context.Context, track *webrtc.TrackLocalStaticSample) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		interval := time.Second / time.Duration(s.frameRate)
		frame := make([]byte, s.frameBytes)
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
		_ = track.WriteSample(media.Sample{Data: frame, Duration: interval})
	}
}

func (s *SyntheticSource) writeAudio(ctx context.Context, track *webrtc.TrackLocalStaticSample) {
	defer s.wg.Done()
	const frame = 20 * time.Millisecond
	ticker := time.NewTicker(frame)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = track.WriteSample(media.Sample{Data: opusSilence, Duration: frame})
		}
	}
}

// ApplyQuality changes frame rate and frame size to follow q.
func (s *SyntheticSource) ApplyQuality(q netquality.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configure(q)
	return nil
}

// Stop ends sample generation and waits for the writers to exit.
func (s *SyntheticSource) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}
