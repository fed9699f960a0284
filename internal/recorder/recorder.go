package recorder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/learnx/live-backend/internal/rtc"
)

const (
	// RTP payload types used in the SDP handed to ffmpeg (must match the rewrite in WriteRTP).
	payloadTypeVideo = 96
	payloadTypeAudio = 97
	// Default max recording duration (2 hours).
	defaultMaxDurationSec = 7200
)

var (
	// ErrNoTracks is returned when the session has nothing published to record.
	ErrNoTracks = errors.New("no published tracks: start recording after the presenter is live")
	// ErrAlreadyRecording is returned when a session already has an active capture.
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrNotRecording is returned when stopping a session with no active capture.
	ErrNotRecording = errors.New("no active recording")
)

// Tap is the part of the SFU the recorder needs.
type Tap interface {
	GetTrackInfo(sessionID uuid.UUID) []rtc.TrackInfo
	RegisterRecordingSink(sessionID uuid.UUID, sink rtc.RecordingSink)
	UnregisterRecordingSink(sessionID uuid.UUID)
}

// Capture is an active ffmpeg capture for one live session.
type Capture struct {
	sessionID   uuid.UUID
	recordingID uuid.UUID
	outputPath  string
	sdpPath     string
	startedAt   time.Time
	cmd         *exec.Cmd
	videoConn   *net.UDPConn
	audioConn   *net.UDPConn
	mu          sync.Mutex
}

// Sink implements rtc.RecordingSink by sending RTP to ffmpeg's UDP ports.
type Sink struct {
	capture *Capture
}

// rewritePayloadType copies packet with the payload type (lower 7 bits of byte 1) replaced.
func rewritePayloadType(packet []byte, pt byte) []byte {
	out := make([]byte, len(packet))
	copy(out, packet)
	out[1] = (packet[1] & 0x80) | pt
	return out
}

// WriteRTP forwards a copy of the packet to ffmpeg.
func (s *Sink) WriteRTP(kind webrtc.RTPCodecType, packet []byte) {
	if len(packet) < 2 {
		return
	}
	pt := byte(payloadTypeVideo)
	if kind == webrtc.RTPCodecTypeAudio {
		pt = payloadTypeAudio
	}
	rewritten := rewritePayloadType(packet, pt)

	s.capture.mu.Lock()
	defer s.capture.mu.Unlock()
	conn := s.capture.videoConn
	if kind == webrtc.RTPCodecTypeAudio {
		conn = s.capture.audioConn
	}
	if conn != nil {
		_, _ = conn.Write(rewritten)
	}
}

// Result describes a finished capture.
type Result struct {
	RecordingID uuid.UUID
	OutputPath  string
	Duration    time.Duration
}

// Service starts and stops captures by tapping the SFU relay into ffmpeg.
type Service struct {
	tap       Tap
	outputDir string
	ffmpeg    string
	maxDurSec int
	log       *zap.Logger
	mu        sync.Mutex
	captures  map[uuid.UUID]*Capture
}

// NewService creates a recording service. outputDir defaults to os.TempDir().
func NewService(tap Tap, outputDir string, log *zap.Logger) *Service {
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		tap:       tap,
		outputDir: outputDir,
		ffmpeg:    "ffmpeg",
		maxDurSec: defaultMaxDurationSec,
		log:       log,
		captures:  make(map[uuid.UUID]*Capture),
	}
}

// SetMaxDuration sets the maximum recording duration in seconds (ffmpeg -t).
func (svc *Service) SetMaxDuration(sec int) {
	if sec > 0 {
		svc.maxDurSec = sec
	}
}

// SetFFmpegPath overrides the ffmpeg binary.
func (svc *Service) SetFFmpegPath(path string) {
	if path != "" {
		svc.ffmpeg = path
	}
}

// codecFor maps a track to the SDP encoding name and clock rate.
func codecFor(t rtc.TrackInfo) (string, uint32) {
	mime := strings.ToLower(t.MimeType)
	switch mime {
	case strings.ToLower(webrtc.MimeTypeVP8):
		return "VP8", 90000
	case strings.ToLower(webrtc.MimeTypeVP9):
		return "VP9", 90000
	case strings.ToLower(webrtc.MimeTypeH264):
		return "H264", 90000
	case strings.ToLower(webrtc.MimeTypeOpus):
		return "opus/48000/2", 0
	case strings.ToLower(webrtc.MimeTypePCMU):
		return "PCMU", 8000
	}
	if t.Kind == webrtc.RTPCodecTypeAudio {
		return "opus/48000/2", 0
	}
	return "VP8", 90000
}

// buildSDP describes the loopback RTP streams for ffmpeg. One media section per kind;
// payload types are fixed to match the WriteRTP rewrite.
func buildSDP(tracks []rtc.TrackInfo, videoPort, audioPort int) string {
	var b strings.Builder
	b.WriteString("v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=learnx-live\r\nc=IN IP4 127.0.0.1\r\nt=0 0\r\n")
	seen := map[webrtc.RTPCodecType]bool{}
	for _, t := range tracks {
		if seen[t.Kind] {
			continue
		}
		seen[t.Kind] = true
		codec, clock := codecFor(t)
		rtpmap := codec
		if clock != 0 {
			rtpmap = fmt.Sprintf("%s/%d", codec, clock)
		}
		if t.Kind == webrtc.RTPCodecTypeAudio {
			fmt.Fprintf(&b, "m=audio %d RTP/AVP %d\r\na=rtpmap:%d %s\r\n", audioPort, payloadTypeAudio, payloadTypeAudio, rtpmap)
		} else {
			fmt.Fprintf(&b, "m=video %d RTP/AVP %d\r\na=rtpmap:%d %s\r\n", videoPort, payloadTypeVideo, payloadTypeVideo, rtpmap)
		}
	}
	return b.String()
}

// freeUDPPort asks the kernel for an unused loopback port.
func freeUDPPort() (int, error) {
	l, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.LocalAddr().(*net.UDPAddr).Port, nil
}

// OutputPath returns where a recording's file is written.
func (svc *Service) OutputPath(recordingID uuid.UUID) string {
	return filepath.Join(svc.outputDir, "recordings", recordingID.String()+".webm")
}

// StartRecording starts capturing the session's published tracks into a WebM file.
func (svc *Service) StartRecording(_ context.Context, sessionID, recordingID uuid.UUID) (string, error) {
	svc.mu.Lock()
	if _, busy := svc.captures[sessionID]; busy {
		svc.mu.Unlock()
		return "", ErrAlreadyRecording
	}
	svc.mu.Unlock()

	tracks := svc.tap.GetTrackInfo(sessionID)
	if len(tracks) == 0 {
		return "", ErrNoTracks
	}
	videoPort, err := freeUDPPort()
	if err != nil {
		return "", fmt.Errorf("allocate video port: %w", err)
	}
	audioPort, err := freeUDPPort()
	if err != nil {
		return "", fmt.Errorf("allocate audio port: %w", err)
	}

	outputPath := svc.OutputPath(recordingID)
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create recording dir: %w", err)
	}
	sdpPath := filepath.Join(dir, recordingID.String()+".sdp")
	if err := os.WriteFile(sdpPath, []byte(buildSDP(tracks, videoPort, audioPort)), 0600); err != nil {
		return "", fmt.Errorf("write sdp: %w", err)
	}

	// Not bound to the request ctx: the capture outlives the event that started it.
	cmd := exec.Command(svc.ffmpeg,
		"-protocol_whitelist", "file,udp,rtp",
		"-f", "sdp", "-i", sdpPath,
		"-c", "copy",
		"-t", fmt.Sprintf("%d", svc.maxDurSec),
		"-y",
		outputPath,
	)
	if err := cmd.Start(); err != nil {
		_ = os.Remove(sdpPath)
		return "", fmt.Errorf("start ffmpeg: %w", err)
	}

	videoConn, err1 := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: videoPort})
	audioConn, err2 := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: audioPort})
	if err1 != nil || err2 != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		if videoConn != nil {
			videoConn.Close()
		}
		if audioConn != nil {
			audioConn.Close()
		}
		_ = os.Remove(sdpPath)
		return "", fmt.Errorf("udp dial: %w", errors.Join(err1, err2))
	}

	capture := &Capture{
		sessionID:   sessionID,
		recordingID: recordingID,
		outputPath:  outputPath,
		sdpPath:     sdpPath,
		startedAt:   time.Now(),
		cmd:         cmd,
		videoConn:   videoConn,
		audioConn:   audioConn,
	}
	svc.mu.Lock()
	svc.captures[sessionID] = capture
	svc.mu.Unlock()
	svc.tap.RegisterRecordingSink(sessionID, &Sink{capture: capture})

	svc.log.Info("recording started",
		zap.String("session_id", sessionID.String()),
		zap.String("recording_id", recordingID.String()),
		zap.String("output", outputPath))
	return outputPath, nil
}

// StopRecording stops the session's capture and returns the finished file.
func (svc *Service) StopRecording(sessionID uuid.UUID) (*Result, error) {
	svc.mu.Lock()
	capture, ok := svc.captures[sessionID]
	if !ok {
		svc.mu.Unlock()
		return nil, ErrNotRecording
	}
	delete(svc.captures, sessionID)
	svc.mu.Unlock()

	svc.tap.UnregisterRecordingSink(sessionID)

	capture.mu.Lock()
	cmd := capture.cmd
	videoConn, audioConn := capture.videoConn, capture.audioConn
	capture.cmd, capture.videoConn, capture.audioConn = nil, nil, nil
	capture.mu.Unlock()

	if videoConn != nil {
		_ = videoConn.Close()
	}
	if audioConn != nil {
		_ = audioConn.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			_ = cmd.Process.Kill()
		}
	}
	_ = os.Remove(capture.sdpPath)

	res := &Result{
		RecordingID: capture.recordingID,
		OutputPath:  capture.outputPath,
		Duration:    time.Since(capture.startedAt),
	}
	svc.log.Info("recording stopped",
		zap.String("session_id", sessionID.String()),
		zap.String("output", res.OutputPath),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// HasActiveRecording reports whether the session currently has an active capture.
func (svc *Service) HasActiveRecording(sessionID uuid.UUID) bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	_, ok := svc.captures[sessionID]
	return ok
}
