// Package errors provides the error taxonomy for mimic.
//
// Every setup failure (before the relay pipeline is running) is one of
// the structured types below.  They carry enough context for the CLI to
// print a useful one-line message and for callers to classify failures
// with errors.As instead of matching strings.
package errors

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrSessionClosed    = errors.New("relay session already shut down")
	ErrPipelineBroken   = errors.New("relay process exited unexpectedly")
	ErrNoHostInterface  = errors.New("not on the same network as the device")
	ErrNoDeviceAddress  = errors.New("cannot determine device ip")
	ErrUnknownShape     = errors.New("unknown relay shape")
	ErrDeviceDisallowed = errors.New("device does not meet requirements")
)

// ── Structured error types ───────────────────────────────────────────

// ToolingMissingError reports a required local executable or file that
// could not be found.  It is raised before any device interaction.
type ToolingMissingError struct {
	Tool string // executable name or local path
	Hint string // optional suggestion for the user
}

func (e *ToolingMissingError) Error() string {
	msg := fmt.Sprintf("%s executable not found on PATH", e.Tool)
	if strings.ContainsRune(e.Tool, '/') || strings.ContainsRune(e.Tool, filepath.Separator) {
		msg = e.Tool + " not found"
	}
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// UnsupportedDeviceError reports a device that fails the minimum
// requirements (API level or CPU architecture).
type UnsupportedDeviceError struct {
	Field string // "api" or "abi"
	Value string // what the device reported
	Want  string // what is required
}

func (e *UnsupportedDeviceError) Error() string {
	switch e.Field {
	case "api":
		return fmt.Sprintf("device api %s is below the required %s", e.Value, e.Want)
	case "abi":
		return fmt.Sprintf("device abi %q is not %s", e.Value, e.Want)
	default:
		return fmt.Sprintf("device %s %q unsupported (want %s)", e.Field, e.Value, e.Want)
	}
}

func (e *UnsupportedDeviceError) Unwrap() error { return ErrDeviceDisallowed }

// DiscoveryError reports a failure to determine the device address or a
// matching local interface.
type DiscoveryError struct {
	Step string // "device-ip", "mask", "host-ip"
	Err  error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery %s: %v", e.Step, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// RemoteCommandError reports a debug-bridge command that exited non-zero.
type RemoteCommandError struct {
	Command  string
	ExitCode int
	Output   string // combined stderr/stdout, trimmed
	Err      error
}

func (e *RemoteCommandError) Error() string {
	msg := fmt.Sprintf("`%s` failed", e.Command)
	if e.ExitCode != 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if out := firstLine(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *RemoteCommandError) Unwrap() error { return e.Err }

// TransportError reports that the wireless connect handshake never
// succeeded within the retry budget.
type TransportError struct {
	Addr     string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("connect %s failed after %d attempt(s): %v", e.Addr, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Discovery creates a DiscoveryError for step.
func Discovery(step string, err error) *DiscoveryError {
	return &DiscoveryError{Step: step, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsSetupFailure reports whether err belongs to the setup-phase
// taxonomy.  These abort the run before any relay process starts.
func IsSetupFailure(err error) bool {
	var (
		tm *ToolingMissingError
		ud *UnsupportedDeviceError
		de *DiscoveryError
		rc *RemoteCommandError
		te *TransportError
		ce *ConfigError
	)
	return errors.As(err, &tm) || errors.As(err, &ud) || errors.As(err, &de) ||
		errors.As(err, &rc) || errors.As(err, &te) || errors.As(err, &ce)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
