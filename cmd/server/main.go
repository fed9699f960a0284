// Package main runs the live session server: REST API, WebSocket signaling and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/learnx/live-backend/config"
	"github.com/learnx/live-backend/internal/artifacts"
	"github.com/learnx/live-backend/internal/attendance"
	"github.com/learnx/live-backend/internal/auth"
	"github.com/learnx/live-backend/internal/livesessions"
	"github.com/learnx/live-backend/internal/middleware"
	"github.com/learnx/live-backend/internal/models"
	"github.com/learnx/live-backend/internal/netquality"
	"github.com/learnx/live-backend/internal/recorder"
	"github.com/learnx/live-backend/internal/recordings"
	"github.com/learnx/live-backend/internal/rtc"
	"github.com/learnx/live-backend/internal/signaling"
	"github.com/learnx/live-backend/internal/translation"
	"github.com/learnx/live-backend/internal/worker"
	"github.com/learnx/live-backend/pkg/database"
	"github.com/learnx/live-backend/pkg/queue"
	"github.com/learnx/live-backend/pkg/redis"
	"github.com/learnx/live-backend/pkg/response"
	"github.com/learnx/live-backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.PoolConfig(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Object storage is optional; uploads and download URLs answer 503 without it.
	var (
		artifactStore artifacts.ObjectStore
		presigner     recordings.Presigner
		uploader      worker.Uploader
	)
	if cfg.AWS.Region != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ArtifactsBucket:      cfg.AWS.ArtifactsBucket,
			RecordingsBucket:     cfg.AWS.RecordingsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			artifactStore, presigner, uploader = s3Client, s3Client, s3Client
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Translation: Gemini, then LibreTranslate, then MyMemory, then the phrasebook.
	engine := translation.NewEngine(translation.NewCache(), translationProviders(ctx, cfg.Translation, logger), translation.Options{
		Timeout:       cfg.Translation.ProviderTimeout,
		MaxTextLength: cfg.Translation.MaxTextLength,
		Logger:        logger,
	})
	translationHandler := translation.NewHandler(engine, cfg.Translation.InstantTimeout, logger)

	// Live sessions
	sessionRepo := livesessions.NewRepository(pool)
	attendanceRepo := attendance.NewRepository(pool)

	// SFU callbacks reach the hub, which is created after the SFU.
	var hub *signaling.Hub
	sfu := rtc.NewSFU(rtc.SFUConfig{
		NewPeerConnection: rtc.NewPionFactory(rtc.ParseICEServers(cfg.WebRTC.ICEUrls)),
		OnCandidate: func(sessionID, userID uuid.UUID, target string, c webrtc.ICECandidateInit) {
			hub.OnSFUCandidate(sessionID, userID, target, c)
		},
		OnSubscriberOffer: func(sessionID, userID uuid.UUID, offer webrtc.SessionDescription) {
			hub.OnSubscriberOffer(sessionID, userID, offer)
		},
		Logger: logger,
	})

	// Recordings (SFU tap -> ffmpeg -> upload job)
	recordingRepo := recordings.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	recorderSvc := recorder.NewService(sfu, cfg.Recording.OutputDir, logger)
	recordingSvc := recordings.NewService(recordingRepo, recorderSvc, jobQueue, logger)
	recordingHandler := recordings.NewHandler(recordingRepo, sessionRepo, presigner, logger)

	var endPolicy signaling.EndPolicy
	if cfg.Live.EndOnHostLeave {
		endPolicy = signaling.HostLeavePolicy
	}
	hub = signaling.NewHub(signaling.Config{
		Store:            sessionRepo,
		Translator:       engine,
		Recorder:         recordingSvc,
		Attendance:       attendanceRepo,
		SFU:              sfu,
		EndPolicy:        endPolicy,
		DefaultTargets:   cfg.Translation.DefaultTargets,
		ChatHistory:      cfg.Live.ChatHistory,
		CaptionWindow:    cfg.Live.CaptionWindow,
		ClientBuffer:     cfg.Live.ClientBuffer,
		TranslateTimeout: 4 * cfg.Translation.ProviderTimeout,
		Logger:           logger,
	})
	sessionHandler := livesessions.NewHandler(sessionRepo, hub, logger)
	artifactHandler := artifacts.NewHandler(artifactStore, sessionRepo, logger)
	attendanceHandler := attendance.NewHandler(attendanceRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		hctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := rdb.Healthy(hctx); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		if err := pool.Ping(hctx); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok", "liveSessions": hub.ActiveSessions()})
	})

	// Public: bandwidth probe for the network quality monitor
	router.GET("/api/network/probe", netquality.ProbeHandler(cfg.Server.ProbeMaxBytes))

	// Protected API (JWT required)
	api := router.Group("/api")
	api.Use(middleware.JWT(jwtService))
	{
		// Live sessions
		api.POST("/live", middleware.RequireRole(models.RoleTeacher, models.RoleAdmin), sessionHandler.Create)
		api.GET("/live", sessionHandler.List)
		api.GET("/live/:sessionId", sessionHandler.Get)
		api.GET("/live/:sessionId/participants", sessionHandler.Participants)
		api.GET("/live/:sessionId/attendance", middleware.RequireRole(models.RoleTeacher, models.RoleAdmin), attendanceHandler.Get)
		api.POST("/live/:sessionId/start", middleware.RequireRole(models.RoleTeacher, models.RoleAdmin), sessionHandler.Start)
		api.POST("/live/:sessionId/end", middleware.RequireRole(models.RoleTeacher, models.RoleAdmin), sessionHandler.End)

		// Shared artifacts
		api.POST("/live/:sessionId/artifacts", middleware.RequireRole(models.RoleTeacher), artifactHandler.Upload)

		// Recordings
		api.GET("/live/:sessionId/recordings", recordingHandler.ListBySession)
		api.GET("/recordings/:recordingId/download-url", recordingHandler.GenerateDownloadURL)

		// Translation
		api.POST("/translate", translationHandler.Translate)
		api.POST("/translate/instant", translationHandler.Instant)
		api.POST("/translate/batch", translationHandler.Batch)
		api.GET("/translate/languages", translationHandler.Languages)
		api.GET("/translate/stats", translationHandler.Stats)
		api.DELETE("/translate/cache", middleware.RequireRole(models.RoleTeacher), translationHandler.ClearCache)
	}

	// WebSocket (token in query or Authorization header)
	router.GET("/ws", signaling.ServeWs(hub, jwtService, cfg.Server.CORSAllowedOrigins, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (recording upload to S3)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if uploader != nil {
		processor := worker.NewRecordingProcessor(recordingRepo, uploader, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("recording worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	// Hijacked WebSocket connections are not tracked by Shutdown.
	hub.Close()
	logger.Info("server stopped")
}

func translationProviders(ctx context.Context, cfg config.TranslationConfig, logger *zap.Logger) []translation.Provider {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	var providers []translation.Provider
	if cfg.GeminiAPIKey != "" {
		gemini, err := translation.NewGeminiProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("gemini translation disabled", zap.Error(err))
		} else {
			providers = append(providers, gemini)
		}
	}
	if cfg.LibreURL != "" {
		providers = append(providers, translation.NewLibreProvider(cfg.LibreURL, cfg.LibreAPIKey, httpClient))
	}
	if cfg.MyMemoryURL != "" {
		providers = append(providers, translation.NewMyMemoryProvider(cfg.MyMemoryURL, cfg.MyMemoryEmail, httpClient))
	}
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	logger.Info("translation providers", zap.Strings("chain", names))
	return providers
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
