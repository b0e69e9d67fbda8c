// Package device validates the attached device and prepares its temp
// directory with the helper binaries and pipes the relay needs.
//
// Validation is read-only and always completes before anything is
// written to the device.
package device

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"

	mimicerr "mimic/internal/errors"
	"mimic/util"
)

// RemoteShell runs a command on the device and returns trimmed stdout.
type RemoteShell interface {
	Run(ctx context.Context, command string) (string, error)
}

// Pusher copies a local file onto the device.
type Pusher interface {
	Push(ctx context.Context, local, remote string) error
}

// Profile is what the device reports about itself.
type Profile struct {
	APILevel          int
	CPUAbi            string
	WirelessInterface string
}

// Requirements are the minimums a device must meet.
type Requirements struct {
	MinAPILevel int
	ABI         string
}

// Validate reads the device's API level, CPU ABI and wireless interface
// and refuses devices below req.  It issues only property reads.
func Validate(ctx context.Context, shell RemoteShell, req Requirements) (Profile, error) {
	sdk, err := shell.Run(ctx, "getprop ro.build.version.sdk")
	if err != nil {
		return Profile{}, err
	}
	api, convErr := strconv.Atoi(sdk)
	if convErr != nil || api < req.MinAPILevel {
		return Profile{}, &mimicerr.UnsupportedDeviceError{
			Field: "api", Value: sdk, Want: strconv.Itoa(req.MinAPILevel),
		}
	}

	abi, err := shell.Run(ctx, "getprop ro.product.cpu.abi2")
	if err != nil {
		return Profile{}, err
	}
	if abi == "" {
		if abi, err = shell.Run(ctx, "getprop ro.product.cpu.abi"); err != nil {
			return Profile{}, err
		}
	}
	if abi != req.ABI {
		return Profile{}, &mimicerr.UnsupportedDeviceError{Field: "abi", Value: abi, Want: req.ABI}
	}

	intf, err := shell.Run(ctx, "getprop wifi.interface")
	if err != nil {
		return Profile{}, err
	}

	return Profile{APILevel: api, CPUAbi: abi, WirelessInterface: intf}, nil
}

// Preparer pushes helper binaries and creates device-side pipes.
type Preparer struct {
	Shell     RemoteShell
	Pusher    Pusher
	LocalDir  string
	DeviceDir string
	Logger    *util.Logger
}

// PrepareBinaries removes any stale copy of each binary from the device
// temp directory, pushes the local copy and marks it executable.  It is
// safe to run again after a failed attempt.  All local files are
// checked before the first push.
func (p *Preparer) PrepareBinaries(ctx context.Context, names []string) error {
	for _, name := range names {
		local := filepath.Join(p.LocalDir, name)
		if _, err := os.Stat(local); err != nil {
			return &mimicerr.ToolingMissingError{
				Tool: local,
				Hint: fmt.Sprintf("build the device binaries into %s", p.LocalDir),
			}
		}
	}

	for _, name := range names {
		remote := path.Join(p.DeviceDir, name)
		if _, err := p.Shell.Run(ctx, "rm -f "+remote); err != nil {
			return err
		}
		if err := p.Pusher.Push(ctx, filepath.Join(p.LocalDir, name), remote); err != nil {
			return err
		}
		if _, err := p.Shell.Run(ctx, "chmod 755 "+remote); err != nil {
			return err
		}
		if p.Logger != nil {
			p.Logger.Verbose("pushed %s", remote)
		}
	}
	return nil
}

// PreparePipe recreates the named pipe pipeName in the device temp
// directory using the pushed mkfifo helper, world-writable so the
// capture process can open it.
func (p *Preparer) PreparePipe(ctx context.Context, mkfifo, pipeName string) error {
	pipe := path.Join(p.DeviceDir, pipeName)
	cmds := []string{
		"rm -f " + pipe,
		path.Join(p.DeviceDir, mkfifo) + " " + pipe,
		"chmod 666 " + pipe,
	}
	for _, c := range cmds {
		if _, err := p.Shell.Run(ctx, c); err != nil {
			return err
		}
	}
	return nil
}
