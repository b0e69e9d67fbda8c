package core

import (
	"context"

	"mimic/config"
	"mimic/internal/adb"
	"mimic/internal/device"
	mimicerr "mimic/internal/errors"
	"mimic/internal/netdisc"
	"mimic/util"
)

// ProbeMode runs the read-only half of startup (tool check, network
// resolution, device validation) and reports the plan without touching
// the device.
type ProbeMode struct {
	Config     *config.Config
	ADB        *adb.Client
	Resolver   *netdisc.Resolver
	CheckTools func(names ...string) error
	OnReady    func(Plan)
	Logger     *util.Logger
}

// Run implements Mode.
func (m *ProbeMode) Run(ctx context.Context) error {
	plan, err := discover(ctx, m.Config, m.ADB, m.Resolver, m.CheckTools, m.Logger)
	if err != nil {
		return err
	}
	if m.OnReady != nil {
		m.OnReady(plan)
	}
	return nil
}

// discover performs every step that only reads: local tools, device
// network, host network, device requirements.
func discover(ctx context.Context, cfg *config.Config, client *adb.Client, resolver *netdisc.Resolver,
	checkTools func(...string) error, logger *util.Logger) (Plan, error) {

	if err := checkTools(cfg.RequiredTools()...); err != nil {
		return Plan{}, err
	}

	usb := client.USB()
	info, err := resolver.ResolveDeviceIP(ctx, usb)
	if err != nil {
		return Plan{}, err
	}
	host, err := resolver.ResolveHostIP(ctx, info)
	if err != nil {
		return Plan{}, err
	}
	logger.Verbose("device %s reachable from %s (%s)", info, host.HostIP, host.Interface)

	profile, err := device.Validate(ctx, usb, device.Requirements{MinAPILevel: cfg.MinAPILevel, ABI: cfg.ABI})
	if err != nil {
		return Plan{}, err
	}
	logger.Verbose("device api %d, abi %s", profile.APILevel, profile.CPUAbi)

	if cfg.Shape == config.ShapeSocket && cfg.ListenPort == 0 {
		port, err := util.FindFreePort("")
		if err != nil {
			return Plan{}, mimicerr.Discovery("listen-port", err)
		}
		cfg.ListenPort = port
		logger.Verbose("listening on free port %d", port)
	}

	return newPlan(cfg, info, host, profile), nil
}
