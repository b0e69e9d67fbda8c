package adb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mimicerr "mimic/internal/errors"
	"mimic/internal/metrics"
	"mimic/internal/retry"
	"mimic/util"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	calls   []call
	results map[string]Result // keyed by joined args
	err     error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (Result, error) {
	f.calls = append(f.calls, call{name, args})
	if f.err != nil {
		return Result{}, f.err
	}
	return f.results[strings.Join(args, " ")], nil
}

func newTestClient(r *fakeRunner, serial string) *Client {
	return &Client{Path: "adb", Serial: serial, Runner: r, Logger: util.NewLogger(0), Metrics: metrics.New()}
}

func TestShell_RunTrimsOutput(t *testing.T) {
	r := &fakeRunner{results: map[string]Result{
		"-d shell getprop wifi.interface": {Stdout: "wlan0\r\n"},
	}}
	c := newTestClient(r, "")

	out, err := c.USB().Run(context.Background(), "getprop wifi.interface")
	require.NoError(t, err)
	assert.Equal(t, "wlan0", out)
	assert.Equal(t, "adb", r.calls[0].name)
	assert.EqualValues(t, 1, c.Metrics.RemoteCommands())
}

func TestShell_SerialTarget(t *testing.T) {
	r := &fakeRunner{results: map[string]Result{}}
	c := newTestClient(r, "R58M123")

	_, err := c.USB().Run(context.Background(), "getprop ro.build.version.sdk")
	require.NoError(t, err)
	assert.Equal(t, []string{"-s", "R58M123", "shell", "getprop ro.build.version.sdk"}, r.calls[0].args)
}

func TestShell_NonZeroExit(t *testing.T) {
	r := &fakeRunner{results: map[string]Result{
		"-d shell ifconfig wlan0": {Stderr: "ifconfig: wlan0: No such device\n", ExitCode: 1},
	}}
	c := newTestClient(r, "")

	_, err := c.USB().Run(context.Background(), "ifconfig wlan0")
	var rc *mimicerr.RemoteCommandError
	require.ErrorAs(t, err, &rc)
	assert.Equal(t, 1, rc.ExitCode)
	assert.Equal(t, "adb -d shell ifconfig wlan0", rc.Command)
	assert.Equal(t, "ifconfig: wlan0: No such device", rc.Output)
	assert.EqualValues(t, 1, c.Metrics.Snapshot().RemoteFailures)
}

func TestShell_RunnerFailure(t *testing.T) {
	boom := errors.New("exec: adb: not found")
	c := newTestClient(&fakeRunner{err: boom}, "")

	_, err := c.USB().Run(context.Background(), "getprop wifi.interface")
	var rc *mimicerr.RemoteCommandError
	require.ErrorAs(t, err, &rc)
	assert.ErrorIs(t, err, boom)
}

func TestShell_Command(t *testing.T) {
	c := newTestClient(&fakeRunner{}, "")
	name, args := c.Wireless("10.0.0.5:5555").Command("/data/local/tmp/mimic_arm --raw -")
	assert.Equal(t, "adb", name)
	assert.Equal(t, []string{"-s", "10.0.0.5:5555", "shell", "/data/local/tmp/mimic_arm --raw -"}, args)
	assert.Equal(t, "-s 10.0.0.5:5555", c.Wireless("10.0.0.5:5555").String())
}

func TestClient_PushAndTCPIP(t *testing.T) {
	r := &fakeRunner{results: map[string]Result{}}
	c := newTestClient(r, "")

	require.NoError(t, c.Push(context.Background(), "bin/nc_arm", "/data/local/tmp/nc_arm"))
	require.NoError(t, c.TCPIP(context.Background(), 5555))
	require.NoError(t, c.Disconnect(context.Background(), "10.0.0.5:5555"))

	require.Len(t, r.calls, 3)
	assert.Equal(t, []string{"-d", "push", "bin/nc_arm", "/data/local/tmp/nc_arm"}, r.calls[0].args)
	assert.Equal(t, []string{"-d", "tcpip", "5555"}, r.calls[1].args)
	assert.Equal(t, []string{"disconnect", "10.0.0.5:5555"}, r.calls[2].args)
}

func TestClient_Connect(t *testing.T) {
	tests := []struct {
		name      string
		stdout    string
		ok        bool
		permanent bool
	}{
		{"connected", "connected to 10.0.0.5:5555", true, false},
		{"already", "already connected to 10.0.0.5:5555", true, false},
		{"refused", "unable to connect to 10.0.0.5:5555: Connection refused", false, false},
		{"failed", "failed to connect to '10.0.0.5:5555': Connection refused", false, false},
		{"empty", "", false, false},
		{"unauthenticated", "failed to authenticate to 10.0.0.5:5555", false, true},
		{"unresolvable", "failed to resolve host: 'phone.lan': No such host is known.", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{results: map[string]Result{
				"connect 10.0.0.5:5555": {Stdout: tt.stdout},
			}}
			err := newTestClient(r, "").Connect(context.Background(), "10.0.0.5:5555")
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
			assert.Equal(t, tt.permanent, retry.IsPermanent(err))
		})
	}
}
