// Package proctest provides an in-memory process.Spawner for tests.
package proctest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mimic/internal/process"
)

// ErrKilled is the exit error of a fake process that was killed.
var ErrKilled = errors.New("signal: terminated")

// Process is a fake process.Process whose exit the test controls.
type Process struct {
	// KillDelay makes Kill block this long before the process exits.
	KillDelay time.Duration

	spec  process.Spec
	done  chan struct{}
	once  sync.Once
	err   error
	kills atomic.Int32
}

// NewProcess returns a running fake for spec.
func NewProcess(spec process.Spec) *Process {
	return &Process{spec: spec, done: make(chan struct{})}
}

func (p *Process) Role() process.Role { return p.spec.Role }
func (p *Process) Spec() process.Spec { return p.spec }

func (p *Process) String() string {
	return strings.TrimSpace(p.spec.Name + " " + strings.Join(p.spec.Args, " "))
}

func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Kill counts the call and ends the process if it is still running.
func (p *Process) Kill() error {
	p.kills.Add(1)
	if p.KillDelay > 0 {
		time.Sleep(p.KillDelay)
	}
	p.Exit(ErrKilled)
	return nil
}

// Exit ends the process with err.  Only the first call has an effect.
func (p *Process) Exit(err error) {
	p.once.Do(func() {
		p.err = err
		close(p.done)
	})
}

// Exited reports whether the process has ended.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Kills is the number of times Kill was called.
func (p *Process) Kills() int { return int(p.kills.Load()) }

// Spawner records every spawn and hands out fake processes.
type Spawner struct {
	// FailRole makes spawning that role fail.
	FailRole process.Role

	mu    sync.Mutex
	procs []*Process
}

// Spawn implements process.Spawner.
func (s *Spawner) Spawn(ctx context.Context, spec process.Spec) (process.Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FailRole != "" && spec.Role == s.FailRole {
		return nil, fmt.Errorf("start %s %q: executable file not found in $PATH", spec.Role, spec.Name)
	}
	p := NewProcess(spec)
	s.mu.Lock()
	s.procs = append(s.procs, p)
	s.mu.Unlock()
	return p, nil
}

// Processes returns every spawned fake in spawn order.
func (s *Spawner) Processes() []*Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Process(nil), s.procs...)
}

// Roles returns the roles spawned, in order.
func (s *Spawner) Roles() []process.Role {
	var out []process.Role
	for _, p := range s.Processes() {
		out = append(out, p.Role())
	}
	return out
}

// ByRole returns the first fake spawned with role, or nil.
func (s *Spawner) ByRole(role process.Role) *Process {
	for _, p := range s.Processes() {
		if p.Role() == role {
			return p
		}
	}
	return nil
}
