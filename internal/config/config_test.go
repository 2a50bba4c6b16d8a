package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/GameFinder/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	t.Run("it should fall back to defaults without a file", func(t *testing.T) {
		cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "release", cfg.Mode)
		assert.Equal(t, 8000, cfg.Port)
		assert.Equal(t, 54*time.Second, cfg.PingPeriod)
		assert.Equal(t, 60*time.Second, cfg.PongWait)
		assert.Equal(t, 64, cfg.InboxBuffer)
		assert.Equal(t, time.Hour, cfg.Steam.GamesTTL)
		assert.Equal(t, 6*time.Hour, cfg.Steam.UserTTL)
		assert.Equal(t, "cache", cfg.Steam.CacheDir)
	})

	t.Run("it should read the yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.test.yaml")
		yaml := "mode: debug\nport: 9001\nrate_limit: 5\nsteam:\n  user_ttl: 30m\n"
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

		cfg, err := config.LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Mode)
		assert.Equal(t, 9001, cfg.Port)
		assert.Equal(t, 5, cfg.RateLimit)
		assert.Equal(t, 30*time.Minute, cfg.Steam.UserTTL)
		assert.Equal(t, time.Hour, cfg.Steam.GamesTTL)
	})

	t.Run("it should let the environment override the file", func(t *testing.T) {
		t.Setenv("PLAY_API_KEY", "k-123")
		t.Setenv("GAMEFINDER_PORT", "7000")

		cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "k-123", cfg.Steam.APIKey)
		assert.Equal(t, 7000, cfg.Port)
	})
}
