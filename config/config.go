// Package config defines the runtime configuration for mimic and the
// helpers that derive tool lists and device paths from it.
package config

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"time"

	mimicerr "mimic/internal/errors"
)

// Config holds every tuneable for a single mirroring session.
type Config struct {
	// ── Local tools ──────────────────────────────────────────────────
	ADBPath    string `yaml:"adb"`
	NetcatPath string `yaml:"netcat"`
	PlayerPath string `yaml:"player"`
	Serial     string `yaml:"serial"` // USB device serial; empty uses adb -d

	// ── Relay ────────────────────────────────────────────────────────
	Shape      string `yaml:"shape"`    // socket | rtsp
	Listener   string `yaml:"listener"` // nc | builtin (socket shape)
	ADBPort    int    `yaml:"adb_port"`
	RTSPPort   int    `yaml:"rtsp_port"`
	ListenPort int    `yaml:"listen_port"` // 0 picks a free port

	// ── Capture ──────────────────────────────────────────────────────
	BitRate   int           `yaml:"bit_rate"`
	TimeLimit time.Duration `yaml:"time_limit"`
	FPS       int           `yaml:"fps"`

	// ── Device ───────────────────────────────────────────────────────
	MinAPILevel   int    `yaml:"min_api_level"`
	ABI           string `yaml:"abi"`
	BinDir        string `yaml:"bin_dir"`
	DeviceDir     string `yaml:"device_dir"`
	CaptureBinary string `yaml:"capture_binary"`
	NetcatBinary  string `yaml:"netcat_binary"`
	MkfifoBinary  string `yaml:"mkfifo_binary"`
	RelayBinary   string `yaml:"relay_binary"`
	DevicePipe    string `yaml:"device_pipe"`
	HostPipe      string `yaml:"host_pipe"`

	// ── Timing ───────────────────────────────────────────────────────
	ConnectSettle   time.Duration `yaml:"connect_settle"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	ConnectAttempts int           `yaml:"connect_attempts"` // 0 = bounded by ConnectTimeout only
	ListenerSettle  time.Duration `yaml:"listener_settle"`
	ForwarderSettle time.Duration `yaml:"forwarder_settle"`
	RelaySettle     time.Duration `yaml:"relay_settle"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	KillGrace       time.Duration `yaml:"kill_grace"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose       int    `yaml:"verbose"`
	LogJSON       bool   `yaml:"log_json"`
	LogTimestamps bool   `yaml:"log_timestamps"`
	DryRun        bool   `yaml:"-"`
	File          string `yaml:"-"` // --config path, if any
}

// ── Derived values ───────────────────────────────────────────────────

// RequiredTools lists the local executables the configured shape needs.
// They are checked once, before any device interaction.
func (c *Config) RequiredTools() []string {
	tools := []string{c.ADBPath}
	if c.Shape == ShapeSocket && c.Listener == ListenerNetcat {
		tools = append(tools, c.NetcatPath)
	}
	return append(tools, c.PlayerPath)
}

// DeviceBinaries lists the helper binaries pushed to the device, in
// push order.
func (c *Config) DeviceBinaries() []string {
	if c.Shape == ShapeRTSP {
		return []string{c.CaptureBinary, c.RelayBinary}
	}
	return []string{c.CaptureBinary, c.NetcatBinary, c.MkfifoBinary}
}

// DevicePath joins name onto the device temp directory.  Device paths
// are always slash-separated.
func (c *Config) DevicePath(name string) string {
	return path.Join(c.DeviceDir, name)
}

// LocalBinary returns the local path of a device helper binary.
func (c *Config) LocalBinary(name string) string {
	return filepath.Join(c.BinDir, name)
}

// TimeLimitSeconds renders the capture time limit for --time-limit.
func (c *Config) TimeLimitSeconds() string {
	return strconv.Itoa(int(c.TimeLimit / time.Second))
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Shape {
	case ShapeSocket, ShapeRTSP:
	default:
		return &mimicerr.ConfigError{
			Field: "shape", Value: c.Shape,
			Message: mimicerr.ErrUnknownShape.Error(),
			Hint:    "use socket or rtsp",
		}
	}

	switch c.Listener {
	case ListenerNetcat, ListenerBuiltin:
	default:
		return &mimicerr.ConfigError{
			Field: "listener", Value: c.Listener,
			Message: "unknown listener",
			Hint:    "use nc or builtin",
		}
	}

	for _, p := range []struct {
		field string
		port  int
	}{
		{"adb-port", c.ADBPort},
		{"rtsp-port", c.RTSPPort},
	} {
		if p.port < 1 || p.port > 65535 {
			return &mimicerr.ConfigError{Field: p.field, Value: p.port, Message: "out of range 1-65535"}
		}
	}
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return &mimicerr.ConfigError{
			Field: "listen-port", Value: c.ListenPort,
			Message: "out of range 0-65535",
			Hint:    "0 picks a free port",
		}
	}

	if c.BitRate <= 0 {
		return &mimicerr.ConfigError{Field: "bit-rate", Value: c.BitRate, Message: "must be positive"}
	}
	if c.TimeLimit < time.Second {
		return &mimicerr.ConfigError{
			Field: "time-limit", Value: c.TimeLimit,
			Message: "must be at least one second",
			Hint:    "the capture binary takes whole seconds",
		}
	}
	if c.FPS <= 0 {
		return &mimicerr.ConfigError{Field: "fps", Value: c.FPS, Message: "must be positive"}
	}
	if c.MinAPILevel < 1 {
		return &mimicerr.ConfigError{Field: "min-api", Value: c.MinAPILevel, Message: "must be positive"}
	}
	if c.ABI == "" {
		return &mimicerr.ConfigError{Field: "abi", Message: "required"}
	}
	if c.ADBPath == "" {
		return &mimicerr.ConfigError{Field: "adb", Message: "required"}
	}
	if c.PlayerPath == "" {
		return &mimicerr.ConfigError{Field: "player", Message: "required"}
	}
	if !path.IsAbs(c.DeviceDir) {
		return &mimicerr.ConfigError{
			Field: "device-dir", Value: c.DeviceDir,
			Message: "must be an absolute device path",
		}
	}
	if c.ConnectTimeout < c.ConnectSettle {
		return &mimicerr.ConfigError{
			Field: "connect-timeout", Value: c.ConnectTimeout,
			Message: fmt.Sprintf("shorter than connect settle %s", c.ConnectSettle),
		}
	}
	if c.ConnectAttempts < 0 {
		return &mimicerr.ConfigError{Field: "connect-attempts", Value: c.ConnectAttempts, Message: "must not be negative"}
	}
	if c.ShutdownTimeout <= 0 {
		return &mimicerr.ConfigError{Field: "shutdown-timeout", Value: c.ShutdownTimeout, Message: "must be positive"}
	}
	return nil
}
