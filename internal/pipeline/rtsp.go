package pipeline

import (
	"context"
	"fmt"

	"mimic/config"
	"mimic/internal/process"
	"mimic/internal/retry"
	"mimic/internal/session"
	"mimic/util"
)

// RTSPShape is the proxy relay: the capture writes to stdout, the device
// relay serves it over RTSP and the player connects to the device.
type RTSPShape struct{}

func (RTSPShape) Name() string { return config.ShapeRTSP }

func (RTSPShape) Start(ctx context.Context, sess *session.RelaySession, env Env) error {
	cfg := env.Config

	relay := fmt.Sprintf("%s | %s --port %d",
		captureCommand(cfg, "-"), cfg.DevicePath(cfg.RelayBinary), cfg.RTSPPort)
	if err := spawn(ctx, sess, env, remoteSpec(env, process.RoleRelay, relay)); err != nil {
		return err
	}
	if err := retry.Sleep(ctx, cfg.RelaySettle); err != nil {
		return err
	}

	player := process.Spec{
		Role: process.RolePlayer,
		Name: cfg.PlayerPath,
		Args: []string{StreamURL(env.DeviceIP.String(), cfg.RTSPPort)},
	}
	return spawn(ctx, sess, env, player)
}

// StreamURL is the address the player pulls the stream from.
func StreamURL(deviceIP string, port int) string {
	return "rtsp://" + util.FormatAddr(deviceIP, port) + "/"
}
