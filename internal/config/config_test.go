package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/photobooth/pkg/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "photobooth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_EmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultConfig(), cfg.Domain())
	assert.Equal(t, DriverSynthetic, cfg.Camera.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
booth:
  max_captures: 4
  completion_delay: 250ms
camera:
  driver: opencv
  device: 1
redis:
  url: redis://localhost:6379/0
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Booth.MaxCaptures)
	assert.Equal(t, 3, cfg.Booth.CountdownSeconds, "unset keys keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Booth.CompletionDelay)
	assert.Equal(t, DriverOpenCV, cfg.Camera.Driver)
	assert.Equal(t, 1, cfg.Camera.Device)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, time.Minute, cfg.Redis.LockTTL)
	assert.Equal(t, 2*time.Second, cfg.Redis.LockWait)
	assert.Equal(t, 4*460, cfg.Domain().StripHeight())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "booth:\n  max_captures: 4\n")
	t.Setenv("PHOTOBOOTH_MAX_CAPTURES", "2")
	t.Setenv("PHOTOBOOTH_TICK_INTERVAL", "100ms")
	t.Setenv("PHOTOBOOTH_PORT", "9090")
	t.Setenv("PHOTOBOOTH_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Booth.MaxCaptures)
	assert.Equal(t, 100*time.Millisecond, cfg.Booth.TickInterval)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(key string) (string, bool) {
		if key == "PHOTOBOOTH_FRAME_WIDTH" {
			return "wide", true
		}
		return "", false
	})
	assert.ErrorContains(t, err, "config override")
}

func TestMerge_UnknownKey(t *testing.T) {
	cfg := Default()
	err := cfg.Merge(map[string]any{"booth": map[string]any{"flash": true}})
	assert.Error(t, err)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero captures", "booth:\n  max_captures: 0\n"},
		{"negative countdown", "booth:\n  countdown_seconds: -1\n"},
		{"unknown driver", "camera:\n  driver: webcam\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"redis without ttl", "redis:\n  url: redis://x\n  lock_ttl: 0s\n"},
		{"redis without wait", "redis:\n  url: redis://x\n  lock_wait: 0s\n"},
		{"not yaml", "booth: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")
}
