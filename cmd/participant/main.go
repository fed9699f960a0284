// Package main runs a headless live-session participant: it joins over WebSocket, joins the
// media mesh with synthetic tracks, follows network quality, and publishes stdin lines as
// captions. Used for load tests and caption pipeline checks.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/learnx/live-backend/internal/auth"
	"github.com/learnx/live-backend/internal/captions"
	"github.com/learnx/live-backend/internal/models"
	"github.com/learnx/live-backend/internal/netquality"
	"github.com/learnx/live-backend/internal/participant"
	"github.com/learnx/live-backend/internal/rtc"
	"github.com/learnx/live-backend/internal/signaling"
	"github.com/learnx/live-backend/internal/translation"
)

func main() {
	_ = godotenv.Load()

	var (
		server      = flag.String("server", envOr("LEARNX_SERVER", "http://localhost:8080"), "server root URL")
		token       = flag.String("token", os.Getenv("LEARNX_TOKEN"), "JWT issued by the account service")
		sessionFlag = flag.String("session", "", "live session id")
		name        = flag.String("name", "", "display name (defaults to the token name)")
		captionLang = flag.String("caption-lang", "", "language to receive captions in")
		speakLang   = flag.String("speak-lang", "en", "language of the stdin captions")
		withMedia   = flag.Bool("media", true, "join the media mesh with synthetic tracks")
		withStdin   = flag.Bool("captions", false, "publish stdin lines as captions (\"~\" prefix = interim)")
		iceURLs     = flag.String("ice", envOr("WEBRTC_ICE_URLS", "stun:stun.l.google.com:19302"), "comma-separated ICE server URLs")
		debug       = flag.Bool("debug", false, "debug logging")
	)
	flag.Parse()

	logger := newLogger(*debug)
	defer logger.Sync()

	sessionID, err := uuid.Parse(*sessionFlag)
	if err != nil {
		logger.Fatal("invalid -session", zap.Error(err))
	}
	claims, err := auth.Identity(*token)
	if err != nil {
		logger.Fatal("invalid -token", zap.Error(err))
	}
	role := models.Role(claims.Role)
	if *name == "" {
		*name = claims.Name
	}
	logger = logger.With(zap.String("user_id", claims.UserID.String()), zap.String("session_id", sessionID.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := participant.Dial(dialCtx, *server, *token, logger)
	cancel()
	if err != nil {
		logger.Fatal("connect", zap.Error(err))
	}
	defer client.Close()

	// Mesh handlers must be in place before session-joined is consumed.
	var mesh *participant.Mesh
	var coord *rtc.Coordinator
	if *withMedia {
		coord = rtc.NewCoordinator(rtc.Config{
			LocalID:           claims.UserID,
			NewPeerConnection: rtc.NewPionFactory(rtc.ParseICEServers(splitComma(*iceURLs))),
			OnStateChange: func(remote uuid.UUID, state webrtc.PeerConnectionState) {
				logger.Info("peer state", zap.String("remote", remote.String()), zap.String("state", state.String()))
			},
			OnError: func(remote uuid.UUID, err error) {
				logger.Warn("peer error", zap.String("remote", remote.String()), zap.Error(err))
			},
			Logger: logger,
		}, client, rtc.NewSyntheticSource(claims.UserID.String()))
		defer coord.Close()
		if err := coord.StartLocalStream(ctx, rtc.ConstraintsFor(role)); err != nil {
			logger.Fatal("local media", zap.Error(err))
		}
		mesh = participant.NewMesh(claims.UserID, coord)
	}

	joinCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	joined, err := client.Join(joinCtx, sessionID, claims.UserID, participant.JoinOptions{
		Name:            *name,
		Role:            string(role),
		CaptionLanguage: *captionLang,
	})
	cancel()
	if err != nil {
		logger.Fatal("join", zap.Error(err))
	}
	logger.Info("joined", zap.Int("participants", len(joined.Participants)), zap.Bool("recording", joined.IsRecording))

	if coord != nil {
		monitor := netquality.NewMonitor(netquality.MonitorConfig{
			Prober:  netquality.NewHTTPProber(*server, 0, nil),
			Source:  coord,
			Applier: coord,
			Logger:  logger,
			OnSample: func(s netquality.Stats, q netquality.Settings) {
				logger.Debug("network quality",
					zap.Int("score", s.Score),
					zap.String("tier", string(s.Tier)),
					zap.String("preset", string(q.Preset)),
				)
			},
		})
		go monitor.Run(ctx)
		go pingLoop(ctx, client, monitor)
	}

	if *withStdin {
		capture := captions.NewCapture(captions.NewLineRecognizer(os.Stdin), captions.CaptureConfig{
			Language: *speakLang,
			OnResult: func(r captions.Result) {
				if err := client.SendCaption(r); err != nil {
					logger.Warn("send caption", zap.Error(err))
				}
			},
			Logger: logger,
		})
		capture.Start(ctx)
		defer capture.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			_ = client.Leave()
			logger.Info("left session")
			return
		case env, ok := <-client.Events():
			if !ok {
				logger.Warn("connection closed")
				return
			}
			if mesh != nil {
				if handled, err := mesh.Handle(env); err != nil {
					logger.Warn("mesh", zap.String("event", env.Event), zap.Error(err))
				} else if handled && env.Event != signaling.EventUserLeft {
					continue
				}
			}
			if done := logEvent(logger, env, *captionLang); done {
				return
			}
		}
	}
}

// pingLoop feeds server round trips into the monitor's latency estimate.
func pingLoop(ctx context.Context, client *participant.Client, monitor *netquality.Monitor) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			rtt, err := client.Ping(pctx)
			cancel()
			if err == nil {
				monitor.RecordPing(rtt)
			}
		}
	}
}

// logEvent prints the events a person in the session would see. It reports true when the
// session is over.
func logEvent(logger *zap.Logger, env signaling.Envelope, captionLang string) bool {
	switch env.Event {
	case signaling.EventChatMessage:
		var m models.ChatMessage
		if json.Unmarshal(env.Data, &m) == nil {
			logger.Info("chat", zap.String("from", m.UserName), zap.String("message", m.Message))
		}
	case signaling.EventLiveCaption:
		var c models.LiveCaption
		if json.Unmarshal(env.Data, &c) == nil && c.IsFinal {
			logger.Info("caption", zap.String("from", c.UserName), zap.String("text", c.Text))
		}
	case signaling.EventLiveCaptionTranslated:
		var p signaling.CaptionTranslatedPayload
		if json.Unmarshal(env.Data, &p) == nil && captionLang != "" {
			if text, ok := p.Translations[translation.NormalizeLanguage(captionLang)]; ok {
				logger.Info("caption translated", zap.String("language", captionLang), zap.String("text", text))
			}
		}
	case signaling.EventUserJoined, signaling.EventUserLeft:
		var p signaling.ParticipantPayload
		if json.Unmarshal(env.Data, &p) == nil {
			logger.Info(env.Event, zap.String("name", p.Name), zap.String("role", string(p.Role)))
		}
	case signaling.EventError, signaling.EventJoinError, signaling.EventArtifactError,
		signaling.EventSignalError, signaling.EventRecordingError:
		var p signaling.ErrorPayload
		if json.Unmarshal(env.Data, &p) == nil {
			logger.Warn(env.Event, zap.String("cause", p.Event), zap.String("message", p.Message))
		}
	case signaling.EventSessionEnded:
		var p signaling.SessionEndedPayload
		_ = json.Unmarshal(env.Data, &p)
		logger.Info("session ended", zap.String("reason", p.Reason))
		return true
	default:
		logger.Debug("event", zap.String("event", env.Event))
	}
	return false
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newLogger(debug bool) *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if !debug {
		config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, _ := config.Build()
	return logger
}
