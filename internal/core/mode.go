// Package core is the orchestration layer.  It composes discovery,
// device preparation, the transport handover and the relay pipeline
// into complete operational modes, and provides a builder that selects
// the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	adb / process  →  netdisc / device / transport  →  pipeline / session  →  core  →  cmd (CLI)
package core

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"mimic/config"
	"mimic/internal/device"
	"mimic/internal/netdisc"
	"mimic/internal/pipeline"
	"mimic/util"
)

// Mode represents a complete operational mode of mimic (mirror or
// probe).  Each mode owns its full lifecycle from tool checks to
// teardown.
type Mode interface {
	Run(ctx context.Context) error
}

// Plan is what discovery found and what the relay will do with it.  It
// is handed to the caller once startup completes (or, in probe mode,
// instead of starting anything).
type Plan struct {
	SessionID string
	Shape     string
	DryRun    bool

	Device  netdisc.SubnetInfo
	Host    netdisc.HostBinding
	Profile device.Profile

	// Addr is the wireless transport address.
	Addr string
	// Steps describes the mutations and processes, in order.
	Steps []string
}

// newPlan derives the startup plan from the discovery results.
func newPlan(cfg *config.Config, info netdisc.SubnetInfo, host netdisc.HostBinding, profile device.Profile) Plan {
	addr := util.FormatAddr(info.DeviceIP.String(), cfg.ADBPort)
	return Plan{
		Shape:   cfg.Shape,
		DryRun:  cfg.DryRun,
		Device:  info,
		Host:    host,
		Profile: profile,
		Addr:    addr,
		Steps:   planSteps(cfg, info.DeviceIP, host.HostIP, addr),
	}
}

func planSteps(cfg *config.Config, deviceIP, hostIP netip.Addr, addr string) []string {
	var steps []string
	for _, name := range cfg.DeviceBinaries() {
		steps = append(steps, fmt.Sprintf("push %s → %s", cfg.LocalBinary(name), cfg.DevicePath(name)))
	}
	if cfg.Shape == config.ShapeSocket {
		steps = append(steps, "mkfifo "+cfg.DevicePath(cfg.DevicePipe))
	}
	steps = append(steps,
		fmt.Sprintf("adb tcpip %d", cfg.ADBPort),
		"adb connect "+addr,
	)

	switch cfg.Shape {
	case config.ShapeRTSP:
		steps = append(steps,
			fmt.Sprintf("relay: %s on port %d", cfg.DevicePath(cfg.RelayBinary), cfg.RTSPPort),
			fmt.Sprintf("player: %s %s", cfg.PlayerPath, pipeline.StreamURL(deviceIP.String(), cfg.RTSPPort)),
		)
	default:
		listener := fmt.Sprintf("%s -l -p %d > %s", cfg.NetcatPath, cfg.ListenPort, cfg.HostPipe)
		if cfg.Listener == config.ListenerBuiltin {
			listener = fmt.Sprintf("builtin on %s > %s", util.FormatAddr(hostIP.String(), cfg.ListenPort), cfg.HostPipe)
		}
		steps = append(steps,
			"listener: "+listener,
			fmt.Sprintf("player: %s -demuxer h264es -fps %d %s", cfg.PlayerPath, cfg.FPS, cfg.HostPipe),
			fmt.Sprintf("forwarder: %s %s %d", cfg.DevicePath(cfg.NetcatBinary), hostIP, cfg.ListenPort),
			fmt.Sprintf("capture: %s --bit-rate %d --time-limit %s",
				cfg.DevicePath(cfg.CaptureBinary), cfg.BitRate, cfg.TimeLimitSeconds()),
		)
	}
	return steps
}

// String renders the plan as indented lines.
func (p Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "device %s (api %d, %s) via %s\n", p.Device, p.Profile.APILevel, p.Profile.CPUAbi, p.Host.Interface)
	fmt.Fprintf(&b, "host   %s\n", p.Host.HostIP)
	for _, s := range p.Steps {
		fmt.Fprintf(&b, "  %s\n", s)
	}
	return b.String()
}
