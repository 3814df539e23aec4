package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("SHARED_SECRET", "")

	_, err := LoadConfig()
	require.ErrorIs(t, err, ErrMissingSecret)
}

func TestLoadConfigDefaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("SHARED_SECRET", "hunter2")

	cfg, err := LoadConfig()
	req.NoError(err)
	req.Equal(":8080", cfg.Port)
	req.Equal(2, cfg.MaxParticipants)
	req.Equal(int64(4096), cfg.MaxMessageSize)
	req.Equal(5, cfg.RateLimit.Burst)
	req.Equal(time.Second, cfg.RateLimit.RefillInterval)
	req.Equal([]string{"http://localhost:8080"}, cfg.Origins())
	req.Equal("voice_messages", cfg.VoiceDBPath)
	req.Equal("public", cfg.StaticDir)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	req := require.New(t)
	t.Setenv("SHARED_SECRET", "hunter2")
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("MAX_PARTICIPANTS", "3")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, https://alt.example.com")
	t.Setenv("RATE_LIMIT_BURST", "10")

	cfg, err := LoadConfig()
	req.NoError(err)
	req.Equal(":9000", cfg.Port)
	req.Equal(3, cfg.MaxParticipants)
	req.Equal(10, cfg.RateLimit.Burst)
	req.Equal([]string{"https://chat.example.com", "https://alt.example.com"}, cfg.Origins())
}

func TestNewConfigAppliesDefaults(t *testing.T) {
	cfg := NewConfig("hunter2")

	require.Equal(t, "hunter2", cfg.SharedSecret)
	require.Equal(t, 2, cfg.MaxParticipants)
	require.NotEmpty(t, cfg.Port)
}
