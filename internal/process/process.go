// Package process is the local process capability: spawning the
// external relay programs, redirecting their output into named pipes,
// and terminating them as a group.
//
// The relay logic depends only on the [Spawner] and [Process]
// interfaces so it can be exercised against fakes.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"mimic/util"
)

// Role names the part a process plays in the relay pipeline.
type Role string

const (
	RoleListener  Role = "listener"
	RolePlayer    Role = "player"
	RoleForwarder Role = "forwarder"
	RoleCapture   Role = "capture"
	RoleRelay     Role = "relay"
)

// Spec describes one process to launch.
type Spec struct {
	Role Role
	Name string
	Args []string
	// StdoutPath, if set, receives the process's stdout.  Named pipes
	// are opened read-write so the open does not wait for a reader.
	StdoutPath string
}

// Process is a running relay process.
type Process interface {
	Role() Role
	String() string
	// Wait blocks until the process exits and returns its exit error.
	// It may be called any number of times.
	Wait() error
	// Kill terminates the process.  Killing a process that already
	// exited is not an error.
	Kill() error
}

// Spawner launches processes.
type Spawner interface {
	Spawn(ctx context.Context, spec Spec) (Process, error)
}

// ── exec implementation ──────────────────────────────────────────────

// ExecSpawner starts real child processes, each in its own process
// group so that terminal signals reach only mimic and teardown can take
// down any grandchildren (adb forks) together.
type ExecSpawner struct {
	// Grace is the time between SIGTERM and SIGKILL (default 2s).
	Grace time.Duration
	// Output receives stdout (unless redirected) and stderr of every
	// child.  Nil discards it.
	Output io.Writer
	Logger *util.Logger
}

// Spawn starts spec and returns once the process is running.  The
// process outlives ctx; its lifetime belongs to the relay session.
func (s *ExecSpawner) Spawn(ctx context.Context, spec Spec) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(spec.Name, spec.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	// Nil output leaves the child on /dev/null.
	if s.Output != nil {
		cmd.Stdout = s.Output
		cmd.Stderr = s.Output
	}

	var redirect *os.File
	if spec.StdoutPath != "" {
		f, err := OpenRedirect(spec.StdoutPath)
		if err != nil {
			return nil, fmt.Errorf("%s: redirect stdout: %w", spec.Role, err)
		}
		redirect = f
		cmd.Stdout = f
	}

	if s.Logger != nil {
		s.Logger.Debug("spawn %s: %s", spec.Role, cmd.String())
	}
	err := cmd.Start()
	if redirect != nil {
		// The child holds its own descriptor now.
		redirect.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("start %s %q: %w", spec.Role, spec.Name, err)
	}

	grace := s.Grace
	if grace <= 0 {
		grace = 2 * time.Second
	}
	p := &execProcess{role: spec.Role, cmd: cmd, grace: grace, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

type execProcess struct {
	role  Role
	cmd   *exec.Cmd
	grace time.Duration

	done chan struct{}
	err  error

	killOnce sync.Once
	killErr  error
}

func (p *execProcess) Role() Role     { return p.role }
func (p *execProcess) String() string { return p.cmd.String() }

func (p *execProcess) Wait() error {
	<-p.done
	return p.err
}

func (p *execProcess) Kill() error {
	p.killOnce.Do(func() { p.killErr = p.terminate() })
	return p.killErr
}

// terminate sends SIGTERM to the process group, escalating to SIGKILL
// after the grace period.
func (p *execProcess) terminate() error {
	select {
	case <-p.done:
		return nil
	default:
	}

	pgid := -p.cmd.Process.Pid
	if err := unix.Kill(pgid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill %s: %w", p.role, err)
	}

	t := time.NewTimer(p.grace)
	defer t.Stop()
	select {
	case <-p.done:
		return nil
	case <-t.C:
	}

	if err := unix.Kill(pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill -9 %s: %w", p.role, err)
	}
	<-p.done
	return nil
}

// OpenRedirect opens path as a stdout destination.  A FIFO is opened
// O_RDWR so the call returns before the consumer attaches; anything
// else is created or truncated.
func OpenRedirect(path string) (*os.File, error) {
	if fi, err := os.Stat(path); err == nil && fi.Mode()&os.ModeNamedPipe != 0 {
		return os.OpenFile(path, os.O_RDWR, 0)
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

// ExitCode extracts the exit status from a Wait error (-1 if the
// process was killed by a signal or the error is not an exit error).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
