// Package pipeline starts the cooperating processes that carry video
// from the device to the local player.
//
// Two shapes exist.  The socket shape pushes the raw stream over a TCP
// connection from the device into a local listener feeding a named
// pipe the player reads.  The rtsp shape runs a small RTSP relay on the
// device and lets the player pull the stream itself.
package pipeline

import (
	"context"
	"fmt"
	"net/netip"

	"mimic/config"
	mimicerr "mimic/internal/errors"
	"mimic/internal/metrics"
	"mimic/internal/netdisc"
	"mimic/internal/process"
	"mimic/internal/session"
	"mimic/util"
)

// Remote builds the local argv that runs a command on the device over
// the wireless transport.
type Remote interface {
	Command(command string) (string, []string)
}

// Env is everything a shape needs to start.
type Env struct {
	Config   *config.Config
	Host     netdisc.HostBinding
	DeviceIP netip.Addr
	Remote   Remote
	Spawner  process.Spawner
	Logger   *util.Logger
	Metrics  *metrics.Collector
}

// Shape is one arrangement of relay processes.
type Shape interface {
	Name() string
	// Start launches the shape's processes, tracking each in sess in
	// launch order.
	Start(ctx context.Context, sess *session.RelaySession, env Env) error
}

// ForName returns the shape registered under name.
func ForName(name string) (Shape, error) {
	switch name {
	case config.ShapeSocket:
		return SocketShape{}, nil
	case config.ShapeRTSP:
		return RTSPShape{}, nil
	default:
		return nil, fmt.Errorf("%w %q", mimicerr.ErrUnknownShape, name)
	}
}

// StartRelay starts shape.  If it fails part-way, the processes already
// started remain tracked in sess and are stopped by its Shutdown.
func StartRelay(ctx context.Context, shape Shape, sess *session.RelaySession, env Env) error {
	if env.Logger != nil {
		env.Logger.Verbose("starting %s relay", shape.Name())
	}
	if err := shape.Start(ctx, sess, env); err != nil {
		return fmt.Errorf("start %s relay: %w", shape.Name(), err)
	}
	env.Metrics.RelayStarted()
	return nil
}

// spawn launches spec and tracks the result.
func spawn(ctx context.Context, sess *session.RelaySession, env Env, spec process.Spec) error {
	p, err := env.Spawner.Spawn(ctx, spec)
	if err != nil {
		return err
	}
	sess.Track(p)
	return nil
}

// remoteSpec wraps a device command into a local spawn spec.
func remoteSpec(env Env, role process.Role, command string) process.Spec {
	name, args := env.Remote.Command(command)
	return process.Spec{Role: role, Name: name, Args: args}
}

// captureCommand is the device command line of the screen capture,
// writing raw H.264 to out.
func captureCommand(cfg *config.Config, out string) string {
	return fmt.Sprintf("%s --bit-rate %d --time-limit %s --raw %s",
		cfg.DevicePath(cfg.CaptureBinary), cfg.BitRate, cfg.TimeLimitSeconds(), out)
}
