package core

import (
	"mimic/config"
	"mimic/internal/adb"
	"mimic/internal/metrics"
	"mimic/internal/netdisc"
	"mimic/internal/pipeline"
	"mimic/internal/process"
	"mimic/util"
)

// Deps are the collaborators a mode talks to the outside world
// through.  Zero fields are filled with the real implementations.
type Deps struct {
	// Runner executes adb (default adb.ExecRunner).
	Runner adb.Runner
	// Addrs enumerates local interfaces (default netdisc.SystemAddrs).
	Addrs netdisc.AddrSource
	// Spawner launches relay processes (default process.ExecSpawner).
	Spawner process.Spawner
	// CheckTools verifies local executables (default process.CheckTools).
	CheckTools func(names ...string) error
	Metrics    *metrics.Collector
	// OnReady receives the plan once the relay is running, or instead of
	// running it in probe mode.
	OnReady func(Plan)
}

// Build constructs the appropriate Mode from the given configuration.
func Build(cfg *config.Config, logger *util.Logger, deps Deps) (Mode, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	shape, err := pipeline.ForName(cfg.Shape)
	if err != nil {
		return nil, err
	}

	deps = withDefaults(cfg, logger, deps)
	client := adb.NewClient(cfg.ADBPath, cfg.Serial, logger, deps.Metrics)
	client.Runner = deps.Runner
	resolver := &netdisc.Resolver{Addrs: deps.Addrs, Logger: logger}

	if cfg.DryRun {
		return &ProbeMode{
			Config:     cfg,
			ADB:        client,
			Resolver:   resolver,
			CheckTools: deps.CheckTools,
			OnReady:    deps.OnReady,
			Logger:     logger,
		}, nil
	}

	return &MirrorMode{
		Config:     cfg,
		ADB:        client,
		Resolver:   resolver,
		Spawner:    deps.Spawner,
		Shape:      shape,
		CheckTools: deps.CheckTools,
		OnReady:    deps.OnReady,
		Metrics:    deps.Metrics,
		Logger:     logger,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

func withDefaults(cfg *config.Config, logger *util.Logger, deps Deps) Deps {
	if deps.Runner == nil {
		deps.Runner = adb.ExecRunner{}
	}
	if deps.Addrs == nil {
		deps.Addrs = netdisc.SystemAddrs
	}
	if deps.Spawner == nil {
		deps.Spawner = &process.ExecSpawner{Grace: cfg.KillGrace, Logger: logger}
	}
	if deps.CheckTools == nil {
		deps.CheckTools = process.CheckTools
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	return deps
}
