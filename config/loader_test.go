package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Strings(t *testing.T) {
	t.Setenv("MIMIC_ADB", "/opt/sdk/adb")
	t.Setenv("MIMIC_SHAPE", "rtsp")
	t.Setenv("MIMIC_SERIAL", "R58M123")

	cfg := Default()
	LoadFromEnv(cfg)
	assert.Equal(t, "/opt/sdk/adb", cfg.ADBPath)
	assert.Equal(t, ShapeRTSP, cfg.Shape)
	assert.Equal(t, "R58M123", cfg.Serial)
}

func TestLoadFromEnv_Numbers(t *testing.T) {
	t.Setenv("MIMIC_BIT_RATE", "8000000")
	t.Setenv("MIMIC_LISTEN_PORT", "not-a-number")

	cfg := Default()
	LoadFromEnv(cfg)
	assert.Equal(t, 8000000, cfg.BitRate)
	assert.Equal(t, DefaultListenPort, cfg.ListenPort, "invalid values are ignored")
}

func TestLoadFromEnv_ZeroIsAValue(t *testing.T) {
	t.Setenv("MIMIC_VERBOSE", "0")
	t.Setenv("MIMIC_LISTEN_PORT", "0")
	t.Setenv("MIMIC_CONNECT_ATTEMPTS", "-3")

	cfg := Default()
	LoadFromEnv(cfg)
	assert.Equal(t, 0, cfg.Verbose, "quiet")
	assert.Equal(t, 0, cfg.ListenPort)
	assert.Equal(t, 0, cfg.ConnectAttempts, "negative values are ignored")
}

func TestLoadFromEnv_Durations(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"600", 600 * time.Second},
		{"90s", 90 * time.Second},
		{"2m", 2 * time.Minute},
		{"garbage", DefaultTimeLimit},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("MIMIC_TIME_LIMIT", tt.value)
			cfg := Default()
			LoadFromEnv(cfg)
			assert.Equal(t, tt.want, cfg.TimeLimit)
		})
	}
}

func TestLoadFromEnv_Booleans(t *testing.T) {
	for _, v := range []string{"1", "true", "yes", "TRUE", "Yes"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("MIMIC_LOG_JSON", v)
			t.Setenv("MIMIC_LOG_TIMESTAMPS", v)
			cfg := Default()
			LoadFromEnv(cfg)
			assert.True(t, cfg.LogJSON)
			assert.True(t, cfg.LogTimestamps)
		})
	}
}

func TestLoadFromEnv_EmptyKeepsValues(t *testing.T) {
	cfg := Default()
	LoadFromEnv(cfg)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mimic.yaml")
	doc := `
shape: rtsp
player: /usr/local/bin/mplayer
bit_rate: 2000000
time_limit: 10m
connect_timeout: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg := Default()
	require.NoError(t, LoadFile(path, cfg))
	assert.Equal(t, ShapeRTSP, cfg.Shape)
	assert.Equal(t, "/usr/local/bin/mplayer", cfg.PlayerPath)
	assert.Equal(t, 2000000, cfg.BitRate)
	assert.Equal(t, 10*time.Minute, cfg.TimeLimit)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, DefaultADB, cfg.ADBPath, "unset keys keep defaults")
	assert.Equal(t, path, cfg.File)
}

func TestLoadFile_Errors(t *testing.T) {
	cfg := Default()
	assert.Error(t, LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), cfg))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("shape: [unterminated"), 0o644))
	assert.Error(t, LoadFile(bad, cfg))
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("MIMIC_PLAYER=mpv-compat\n"), 0o644))

	t.Setenv("MIMIC_PLAYER", "")
	os.Unsetenv("MIMIC_PLAYER")

	require.NoError(t, LoadDotEnv(envFile))
	cfg := Default()
	LoadFromEnv(cfg)
	assert.Equal(t, "mpv-compat", cfg.PlayerPath)

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "absent.env")), "missing .env is not an error")
}
