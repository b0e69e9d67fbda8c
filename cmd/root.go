// Package cmd wires up the CLI flags and dispatches to the mirroring
// core.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	flag "github.com/spf13/pflag"

	"mimic/config"
	"mimic/internal/core"
	mimicerr "mimic/internal/errors"
	"mimic/internal/process"
	"mimic/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X mimic/cmd.version=2.0.0"
var version = "0.3.0" //nolint:gochecknoglobals

// Execute parses args and runs the selected mimic mode.
func Execute(ctx context.Context, args []string) error {
	return execute(ctx, args, os.Stdout, core.Deps{})
}

func execute(ctx context.Context, args []string, stdout io.Writer, deps core.Deps) error {
	// ── config file, .env and environment ────────────────────────
	cfg := config.Default()
	if path := configPath(args); path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return err
		}
	}
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	config.LoadFromEnv(cfg)

	// ── flags (defaults are the values loaded so far) ────────────
	fs := flag.NewFlagSet("mimic", flag.ContinueOnError)
	fs.SortFlags = false

	fs.String("config", cfg.File, "YAML config file")

	fs.StringVarP(&cfg.Serial, "serial", "s", cfg.Serial, "USB device serial (default: the only USB device)")
	fs.StringVar(&cfg.Shape, "shape", cfg.Shape, "Relay shape: socket or rtsp")
	fs.StringVar(&cfg.Listener, "listener", cfg.Listener, "Socket-shape listener: nc or builtin")
	fs.DurationVarP(&cfg.TimeLimit, "time-limit", "t", cfg.TimeLimit, "Capture time limit")
	fs.IntVarP(&cfg.BitRate, "bit-rate", "b", cfg.BitRate, "Capture bit rate (bits/s)")
	fs.IntVar(&cfg.FPS, "fps", cfg.FPS, "Frame rate hint for the player")

	// ── ports ────────────────────────────────────────────────────
	fs.IntVar(&cfg.ADBPort, "adb-port", cfg.ADBPort, "Wireless adb port on the device")
	fs.IntVar(&cfg.RTSPPort, "rtsp-port", cfg.RTSPPort, "RTSP port of the device relay")
	fs.IntVar(&cfg.ListenPort, "listen-port", cfg.ListenPort, "Local port the device streams to (0 picks a free one)")

	// ── tools and paths ──────────────────────────────────────────
	fs.StringVar(&cfg.ADBPath, "adb", cfg.ADBPath, "adb executable")
	fs.StringVar(&cfg.NetcatPath, "netcat", cfg.NetcatPath, "nc executable")
	fs.StringVar(&cfg.PlayerPath, "player", cfg.PlayerPath, "Player executable")
	fs.StringVar(&cfg.BinDir, "bin-dir", cfg.BinDir, "Local directory of the device binaries")
	fs.StringVar(&cfg.DeviceDir, "device-dir", cfg.DeviceDir, "Device temp directory")
	fs.StringVar(&cfg.HostPipe, "pipe", cfg.HostPipe, "Local named pipe the player reads")

	// ── device requirements ──────────────────────────────────────
	fs.IntVar(&cfg.MinAPILevel, "min-api", cfg.MinAPILevel, "Minimum device API level")
	fs.StringVar(&cfg.ABI, "abi", cfg.ABI, "Required device CPU ABI")

	// ── timing ───────────────────────────────────────────────────
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "Give up on the wireless connection after")
	fs.IntVar(&cfg.ConnectAttempts, "connect-attempts", cfg.ConnectAttempts, "Give up after this many connect attempts (0 = no limit)")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Bound on teardown")

	// ── output ───────────────────────────────────────────────────
	var verbosity int
	var quiet bool
	fs.CountVarP(&verbosity, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&quiet, "quiet", "q", false, "Only print errors")
	fs.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "Log as JSON lines")
	fs.BoolVar(&cfg.LogTimestamps, "log-timestamps", cfg.LogTimestamps, "Prefix log lines with the time")
	fs.BoolVarP(&cfg.DryRun, "dry-run", "n", false, "Check tools, network and device, print the plan, change nothing")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "mimic %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	cfg.Verbose += verbosity
	if quiet {
		cfg.Verbose = 0
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	logger.SetJSON(cfg.LogJSON)
	if cfg.LogTimestamps {
		logger.SetTimestamps(true)
	}
	if cfg.File != "" {
		logger.Verbose("loaded %s", cfg.File)
	}

	if deps.Spawner == nil {
		sp := &process.ExecSpawner{Grace: cfg.KillGrace, Logger: logger}
		if cfg.Verbose >= int(util.LogVerbose) {
			sp.Output = os.Stderr
		}
		deps.Spawner = sp
	}
	if deps.OnReady == nil {
		deps.OnReady = func(p core.Plan) { printBanner(stdout, p) }
	}

	mode, err := core.Build(cfg, logger, deps)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// Report prints err for the user and returns the exit status.  An
// interrupt is silent and exits 130.  A failure before the relay started
// also suggests a dry run.
func Report(w io.Writer, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	case mimicerr.IsSetupFailure(err):
		fmt.Fprintf(w, "mimic: %v\n  hint: mimic --dry-run checks tools, network and device without changing anything\n", err)
	default:
		fmt.Fprintf(w, "mimic: %v\n", err)
	}
	return 1
}

// ── helpers ──────────────────────────────────────────────────────────

// configPath finds --config ahead of the real parse so the file can
// supply flag defaults.
func configPath(args []string) string {
	pre := flag.NewFlagSet("mimic", flag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.Usage = func() {}
	path := pre.String("config", "", "")
	pre.BoolP("help", "h", false, "")
	_ = pre.Parse(args)
	return *path
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `mimic – Android screen mirroring over Wi-Fi v%s

Pushes a capture helper to a USB-attached device, moves adb to the
wireless transport, and plays the device screen locally.

Usage:
  mimic [options]

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  MIMIC_* variables (e.g. MIMIC_SHAPE, MIMIC_BIT_RATE) override the config
  file; flags override both.  A .env file in the working directory is read.

Examples:
  mimic                                   Mirror the only USB device
  mimic -n                                Show what would happen
  mimic --shape rtsp                      Let the player pull over RTSP
  mimic --listener builtin -t 10m -v      In-process listener, 10 minutes
`)
}
