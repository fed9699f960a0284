package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/learnx/live-backend/pkg/database"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	WebRTC      WebRTCConfig
	AWS         AWSConfig
	Recording   RecordingConfig
	Translation TranslationConfig
	Live        LiveConfig
}

// RecordingConfig holds server-side recording (SFU tap) settings.
type RecordingConfig struct {
	OutputDir      string // directory for temp recording files; empty = os.TempDir()
	MaxDurationSec int
}

// WebRTCConfig holds STUN/TURN ICE server URLs and renegotiation limits.
type WebRTCConfig struct {
	ICEUrls           []string // e.g. stun:stun.l.google.com:19302 (comma-separated in env)
	MaxRenegotiations int
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	ProbeMaxBytes      int    // upper bound for GET /api/network/probe
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/learnx?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds AWS credentials and S3 bucket names.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ArtifactsBucket      string
	RecordingsBucket     string
	PresignExpireMinutes int
}

// TranslationConfig selects and tunes the translation provider chain.
type TranslationConfig struct {
	GeminiAPIKey    string
	GeminiModel     string
	LibreURL        string // empty disables the LibreTranslate-compatible provider
	LibreAPIKey     string
	MyMemoryURL     string // empty disables MyMemory
	MyMemoryEmail   string
	ProviderTimeout time.Duration
	InstantTimeout  time.Duration
	DefaultTargets  []string // languages every final caption is translated into
	MaxTextLength   int
}

// LiveConfig holds session channel policy.
type LiveConfig struct {
	EndOnHostLeave bool
	ChatHistory    int
	CaptionWindow  int
	ClientBuffer   int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// PoolConfig returns the pgx pool settings for this database.
func (c DatabaseConfig) PoolConfig() database.PoolConfig {
	return database.PoolConfig{
		DSN:             c.DSN(),
		MaxConns:        int32(c.MaxConns),
		MinConns:        int32(c.MinConns),
		MaxConnLifetime: time.Hour,
	}
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
			ProbeMaxBytes:      getEnvInt("PROBE_MAX_BYTES", 1<<20),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "learnx"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
			MinConns: getEnvInt("DB_MIN_CONNS", 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		WebRTC: WebRTCConfig{
			ICEUrls:           splitTrim(getEnv("WEBRTC_ICE_URLS", "stun:stun.l.google.com:19302"), ","),
			MaxRenegotiations: getEnvInt("WEBRTC_MAX_RENEGOTIATIONS", 3),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArtifactsBucket:      getEnv("AWS_S3_ARTIFACTS_BUCKET", "learnx-live-artifacts"),
			RecordingsBucket:     getEnv("AWS_S3_RECORDINGS_BUCKET", "learnx-live-recordings"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Recording: RecordingConfig{
			OutputDir:      getEnv("RECORDING_OUTPUT_DIR", ""),
			MaxDurationSec: getEnvInt("RECORDING_MAX_DURATION_SEC", 7200),
		},
		Translation: TranslationConfig{
			GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
			GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			LibreURL:        getEnv("LIBRETRANSLATE_URL", ""),
			LibreAPIKey:     getEnv("LIBRETRANSLATE_API_KEY", ""),
			MyMemoryURL:     getEnv("MYMEMORY_URL", "https://api.mymemory.translated.net/get"),
			MyMemoryEmail:   getEnv("MYMEMORY_EMAIL", ""),
			ProviderTimeout: getEnvDuration("TRANSLATION_PROVIDER_TIMEOUT", 800*time.Millisecond),
			InstantTimeout:  getEnvDuration("TRANSLATION_INSTANT_TIMEOUT", 500*time.Millisecond),
			DefaultTargets:  splitTrim(getEnv("TRANSLATION_TARGETS", "hi"), ","),
			MaxTextLength:   getEnvInt("TRANSLATION_MAX_TEXT_LENGTH", 5000),
		},
		Live: LiveConfig{
			EndOnHostLeave: getEnvBool("LIVE_END_ON_HOST_LEAVE", true),
			ChatHistory:    getEnvInt("LIVE_CHAT_HISTORY", 500),
			CaptionWindow:  getEnvInt("LIVE_CAPTION_WINDOW", 10),
			ClientBuffer:   getEnvInt("LIVE_CLIENT_BUFFER", 256),
		},
	}
	if cfg.Database.URL == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database: DATABASE_URL or DB_HOST required")
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("750ms") or plain milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
