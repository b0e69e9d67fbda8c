package config

// loader.go - configuration loading from a YAML file, a .env file and
// environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables, after .env is loaded  (this file)
//   3. YAML config file  (this file)
//   4. Defaults   (defaults.go)

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadFile overlays the YAML document at path onto cfg.  Keys missing
// from the file keep their current value.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	cfg.File = path
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (default
// ".env") into the process environment without overriding variables
// that are already set.  Missing files are not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the MIMIC_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Durations accept Go
// syntax ("3s") or a bare number of seconds.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	envString("MIMIC_ADB", &cfg.ADBPath)
	envString("MIMIC_NETCAT", &cfg.NetcatPath)
	envString("MIMIC_PLAYER", &cfg.PlayerPath)
	envString("MIMIC_SERIAL", &cfg.Serial)

	envString("MIMIC_SHAPE", &cfg.Shape)
	envString("MIMIC_LISTENER", &cfg.Listener)
	envInt("MIMIC_ADB_PORT", &cfg.ADBPort)
	envInt("MIMIC_RTSP_PORT", &cfg.RTSPPort)
	envInt("MIMIC_LISTEN_PORT", &cfg.ListenPort)

	envInt("MIMIC_BIT_RATE", &cfg.BitRate)
	envDuration("MIMIC_TIME_LIMIT", &cfg.TimeLimit)
	envInt("MIMIC_FPS", &cfg.FPS)

	envInt("MIMIC_MIN_API", &cfg.MinAPILevel)
	envString("MIMIC_ABI", &cfg.ABI)
	envString("MIMIC_BIN_DIR", &cfg.BinDir)
	envString("MIMIC_DEVICE_DIR", &cfg.DeviceDir)

	envDuration("MIMIC_CONNECT_TIMEOUT", &cfg.ConnectTimeout)
	envInt("MIMIC_CONNECT_ATTEMPTS", &cfg.ConnectAttempts)
	envDuration("MIMIC_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	envInt("MIMIC_VERBOSE", &cfg.Verbose)
	if envBool("MIMIC_LOG_JSON") {
		cfg.LogJSON = true
	}
	if envBool("MIMIC_LOG_TIMESTAMPS") {
		cfg.LogTimestamps = true
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// envInt accepts zero, which several settings use for "off" or "auto";
// Validate rejects it where it makes no sense.
func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return
	}
	*dst = n
}

func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Second
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
	}
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}
