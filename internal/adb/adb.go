// Package adb drives the debug-bridge command-line tool.  It exposes the
// remote shell capability (over USB or over the wireless transport),
// file push, and the transport control commands used for the wireless
// handover.
//
// Everything runs through a [Runner], so tests substitute a fake and
// never need a device.
package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	mimicerr "mimic/internal/errors"
	"mimic/internal/metrics"
	"mimic/internal/retry"
	"mimic/util"
)

// Result is the outcome of one local command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes a local command to completion.  The error is non-nil
// only when the command could not run at all; a non-zero exit status is
// reported through Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		res.ExitCode = ee.ExitCode()
		return res, nil
	}
	return res, err
}

// Client issues debug-bridge commands.
type Client struct {
	// Path is the adb executable (default "adb").
	Path string
	// Serial selects a USB device by serial.  Empty means "the only USB
	// device" (adb -d).
	Serial  string
	Runner  Runner
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// NewClient returns a Client that runs the real adb binary.
func NewClient(path, serial string, logger *util.Logger, m *metrics.Collector) *Client {
	if path == "" {
		path = "adb"
	}
	return &Client{Path: path, Serial: serial, Runner: ExecRunner{}, Logger: logger, Metrics: m}
}

// usbTarget returns the device selector for the wired transport.
func (c *Client) usbTarget() []string {
	if c.Serial != "" {
		return []string{"-s", c.Serial}
	}
	return []string{"-d"}
}

// USB returns a remote shell over the cable.
func (c *Client) USB() *Shell {
	return &Shell{client: c, target: c.usbTarget()}
}

// Wireless returns a remote shell over the network transport at addr
// ("ip:port").  The transport must already be connected.
func (c *Client) Wireless(addr string) *Shell {
	return &Shell{client: c, target: []string{"-s", addr}}
}

// Push copies a local file to the device over the cable.
func (c *Client) Push(ctx context.Context, local, remote string) error {
	args := append(c.usbTarget(), "push", local, remote)
	_, err := c.run(ctx, args...)
	return err
}

// TCPIP makes the device's adb daemon listen on port in addition to
// the cable.
func (c *Client) TCPIP(ctx context.Context, port int) error {
	args := append(c.usbTarget(), "tcpip", strconv.Itoa(port))
	_, err := c.run(ctx, args...)
	return err
}

// Connect attaches to the wireless transport at addr.  adb reports a
// refused connection on stdout with exit status 0, so the output
// decides success.  Output that no amount of waiting will change is
// marked [retry.Permanent].
func (c *Client) Connect(ctx context.Context, addr string) error {
	out, err := c.run(ctx, "connect", addr)
	if err != nil {
		return err
	}
	if !connected(out) {
		err := fmt.Errorf("adb connect %s: %s", addr, out)
		if hopeless(out) {
			return retry.Permanent(err)
		}
		return err
	}
	return nil
}

// Disconnect detaches from the wireless transport at addr.
func (c *Client) Disconnect(ctx context.Context, addr string) error {
	_, err := c.run(ctx, "disconnect", addr)
	return err
}

// hopelessOutput lists connect failures that are not the daemon still
// restarting.
var hopelessOutput = []string{
	"failed to authenticate",
	"no such host",
	"failed to resolve",
	"bad port",
	"device unauthorized",
}

func hopeless(out string) bool {
	lower := strings.ToLower(out)
	for _, s := range hopelessOutput {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func connected(out string) bool {
	lower := strings.ToLower(out)
	if strings.Contains(lower, "unable") || strings.Contains(lower, "failed") ||
		strings.Contains(lower, "cannot") {
		return false
	}
	return strings.Contains(lower, "connected to")
}

// run executes adb with args and returns trimmed stdout.  A non-zero
// exit status becomes a RemoteCommandError.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	line := c.Path + " " + strings.Join(args, " ")
	if c.Logger != nil {
		c.Logger.Debug("run: %s", line)
	}

	res, err := c.Runner.Run(ctx, c.Path, args...)
	if err != nil {
		c.Metrics.RemoteCommand(true)
		return "", &mimicerr.RemoteCommandError{Command: line, ExitCode: -1, Err: err}
	}
	if res.ExitCode != 0 {
		c.Metrics.RemoteCommand(true)
		output := strings.TrimSpace(res.Stderr)
		if output == "" {
			output = strings.TrimSpace(res.Stdout)
		}
		return "", &mimicerr.RemoteCommandError{Command: line, ExitCode: res.ExitCode, Output: output}
	}
	c.Metrics.RemoteCommand(false)
	return strings.TrimSpace(res.Stdout), nil
}

// Shell is a remote shell on one transport.
type Shell struct {
	client *Client
	target []string
}

// Run executes command on the device and returns its trimmed stdout.
func (s *Shell) Run(ctx context.Context, command string) (string, error) {
	args := append(append([]string(nil), s.target...), "shell", command)
	return s.client.run(ctx, args...)
}

// Command returns the local argv that runs command on the device
// through this transport, for long-running commands that are spawned
// rather than waited on.
func (s *Shell) Command(command string) (string, []string) {
	args := append(append([]string(nil), s.target...), "shell", command)
	return s.client.Path, args
}

// String names the transport, e.g. "-s 10.0.0.5:5555".
func (s *Shell) String() string {
	return strings.Join(s.target, " ")
}
