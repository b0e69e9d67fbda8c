package pipeline

import (
	"context"
	"fmt"
	"strconv"

	"mimic/config"
	"mimic/internal/process"
	"mimic/internal/retry"
	"mimic/internal/session"
	"mimic/util"
)

// SocketShape is the direct-socket relay:
//
//	capture → device pipe → device nc → TCP → listener → host pipe → player
//
// The listener is started before the forwarder so the forwarder's
// connection finds it bound.
type SocketShape struct{}

func (SocketShape) Name() string { return config.ShapeSocket }

func (SocketShape) Start(ctx context.Context, sess *session.RelaySession, env Env) error {
	cfg := env.Config

	if err := process.MakeFIFO(cfg.HostPipe); err != nil {
		return err
	}

	if err := startListener(ctx, sess, env); err != nil {
		return err
	}

	player := process.Spec{
		Role: process.RolePlayer,
		Name: cfg.PlayerPath,
		Args: []string{"-demuxer", "h264es", "-fps", strconv.Itoa(cfg.FPS), cfg.HostPipe},
	}
	if err := spawn(ctx, sess, env, player); err != nil {
		return err
	}

	forward := fmt.Sprintf("%s %s %d < %s",
		cfg.DevicePath(cfg.NetcatBinary), env.Host.HostIP, cfg.ListenPort, cfg.DevicePath(cfg.DevicePipe))
	if err := spawn(ctx, sess, env, remoteSpec(env, process.RoleForwarder, forward)); err != nil {
		return err
	}
	if err := retry.Sleep(ctx, cfg.ForwarderSettle); err != nil {
		return err
	}

	capture := captureCommand(cfg, cfg.DevicePath(cfg.DevicePipe))
	return spawn(ctx, sess, env, remoteSpec(env, process.RoleCapture, capture))
}

// startListener starts the local end of the TCP hop.  The external nc
// gets a fixed settle period; the built-in listener is ready as soon as
// it is bound.
func startListener(ctx context.Context, sess *session.RelaySession, env Env) error {
	cfg := env.Config

	if cfg.Listener == config.ListenerBuiltin {
		addr := util.FormatAddr(env.Host.HostIP.String(), cfg.ListenPort)
		l, err := Listen(addr, cfg.HostPipe, env.Logger, env.Metrics)
		if err != nil {
			return err
		}
		sess.Track(l)
		return nil
	}

	nc := process.Spec{
		Role:       process.RoleListener,
		Name:       cfg.NetcatPath,
		Args:       []string{"-l", "-p", strconv.Itoa(cfg.ListenPort)},
		StdoutPath: cfg.HostPipe,
	}
	if err := spawn(ctx, sess, env, nc); err != nil {
		return err
	}
	return retry.Sleep(ctx, cfg.ListenerSettle)
}
