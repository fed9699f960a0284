package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnx/live-backend/config"
)

func TestLoad_Defaults(t *testing.T) {
	// Setup
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TRANSLATION_TARGETS", "")
	t.Setenv("TRANSLATION_PROVIDER_TIMEOUT", "")
	t.Setenv("LIVE_END_ON_HOST_LEAVE", "")

	// Execute
	cfg, err := config.Load()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 800*time.Millisecond, cfg.Translation.ProviderTimeout)
	assert.Equal(t, []string{"hi"}, cfg.Translation.DefaultTargets)
	assert.True(t, cfg.Live.EndOnHostLeave)
	assert.Contains(t, cfg.Database.DSN(), "sslmode=")
}

func TestLoad_Overrides(t *testing.T) {
	// Setup
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/live?sslmode=require")
	t.Setenv("TRANSLATION_TARGETS", " ta , te,,hi ")
	t.Setenv("TRANSLATION_PROVIDER_TIMEOUT", "1200")
	t.Setenv("TRANSLATION_INSTANT_TIMEOUT", "250ms")
	t.Setenv("LIVE_END_ON_HOST_LEAVE", "false")
	t.Setenv("DB_MAX_CONNS", "25")

	// Execute
	cfg, err := config.Load()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"ta", "te", "hi"}, cfg.Translation.DefaultTargets)
	assert.Equal(t, 1200*time.Millisecond, cfg.Translation.ProviderTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Translation.InstantTimeout)
	assert.False(t, cfg.Live.EndOnHostLeave)

	pc := cfg.Database.PoolConfig()
	assert.Equal(t, "postgres://u:p@db:5432/live?sslmode=require", pc.DSN)
	assert.Equal(t, int32(25), pc.MaxConns)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("LIVE_CHAT_HISTORY", "lots")
	t.Setenv("TRANSLATION_PROVIDER_TIMEOUT", "soon")

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Live.ChatHistory)
	assert.Equal(t, 800*time.Millisecond, cfg.Translation.ProviderTimeout)
}
