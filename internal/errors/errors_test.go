package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolingMissingError_Format(t *testing.T) {
	err := &ToolingMissingError{Tool: "mplayer"}
	assert.Equal(t, "mplayer executable not found on PATH", err.Error())

	err.Hint = "install mplayer"
	assert.Equal(t, "mplayer executable not found on PATH\n  hint: install mplayer", err.Error())

	local := &ToolingMissingError{Tool: "bin/mimic_arm"}
	assert.Equal(t, "bin/mimic_arm not found", local.Error())
}

func TestUnsupportedDeviceError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  UnsupportedDeviceError
		want string
	}{
		{
			name: "api",
			err:  UnsupportedDeviceError{Field: "api", Value: "18", Want: "19"},
			want: "device api 18 is below the required 19",
		},
		{
			name: "abi",
			err:  UnsupportedDeviceError{Field: "abi", Value: "x86", Want: "armeabi"},
			want: `device abi "x86" is not armeabi`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestUnsupportedDeviceError_Is(t *testing.T) {
	err := fmt.Errorf("validate: %w", &UnsupportedDeviceError{Field: "api", Value: "18", Want: "19"})
	assert.ErrorIs(t, err, ErrDeviceDisallowed)
}

func TestDiscoveryError_Unwrap(t *testing.T) {
	err := Discovery("host-ip", ErrNoHostInterface)
	assert.Equal(t, "discovery host-ip: not on the same network as the device", err.Error())
	assert.ErrorIs(t, err, ErrNoHostInterface)
}

func TestRemoteCommandError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  RemoteCommandError
		want string
	}{
		{
			name: "exit code and output",
			err:  RemoteCommandError{Command: "adb -d shell getprop wifi.interface", ExitCode: 1, Output: "error: no devices\nmore"},
			want: "`adb -d shell getprop wifi.interface` failed (exit 1): error: no devices",
		},
		{
			name: "no output",
			err:  RemoteCommandError{Command: "adb tcpip 5555", ExitCode: 255},
			want: "`adb tcpip 5555` failed (exit 255)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	err := &TransportError{Addr: "10.0.0.5:5555", Attempts: 4, Err: io.ErrUnexpectedEOF}
	assert.Equal(t, "connect 10.0.0.5:5555 failed after 4 attempt(s): unexpected EOF", err.Error())
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestConfigError_Format(t *testing.T) {
	err := ConfigError{Field: "shape", Value: "hdmi", Message: "unknown relay shape", Hint: "use socket or rtsp"}
	assert.Equal(t, "config: --shape=hdmi: unknown relay shape\n  hint: use socket or rtsp", err.Error())
}

func TestIsSetupFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", fmt.Errorf("boom"), false},
		{"tooling", &ToolingMissingError{Tool: "adb"}, true},
		{"wrapped discovery", fmt.Errorf("resolve: %w", Discovery("mask", io.EOF)), true},
		{"remote", &RemoteCommandError{Command: "x"}, true},
		{"transport", &TransportError{Addr: "x"}, true},
		{"pipeline", ErrPipelineBroken, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSetupFailure(tt.err))
		})
	}
}

func TestSentinels(t *testing.T) {
	sentinels := []error{
		ErrSessionClosed, ErrPipelineBroken, ErrNoHostInterface,
		ErrNoDeviceAddress, ErrUnknownShape, ErrDeviceDisallowed,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				require.NotErrorIs(t, a, b, "sentinel %d and %d should not match", i, j)
			}
		}
	}
}
