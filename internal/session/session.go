// Package session owns the lifetime of one mirroring run: the processes
// the relay pipeline launched, the transport they run over, and the
// single teardown that undoes both.
//
// The process registry is append-only while the pipeline starts and is
// only read after that; one goroutine per process reports its exit.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	mimicerr "mimic/internal/errors"
	"mimic/internal/metrics"
	"mimic/internal/process"
	"mimic/internal/transport"
	"mimic/util"
)

// Reason is why Wait returned.
type Reason int

const (
	// ReasonCancelled means the user interrupted the run.
	ReasonCancelled Reason = iota
	// ReasonTimeLimit means the capture (or device relay) finished on
	// its own, normally because its time limit elapsed.
	ReasonTimeLimit
	// ReasonPlayerClosed means the player window was closed.
	ReasonPlayerClosed
	// ReasonStreamEnded means the forwarder or listener saw the stream
	// close cleanly, which happens when the capture stops first.
	ReasonStreamEnded
	// ReasonProcessExited means some process died unexpectedly.
	ReasonProcessExited
)

func (r Reason) String() string {
	switch r {
	case ReasonCancelled:
		return "cancelled"
	case ReasonTimeLimit:
		return "time limit reached"
	case ReasonPlayerClosed:
		return "player closed"
	case ReasonStreamEnded:
		return "stream ended"
	case ReasonProcessExited:
		return "process exited"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Disconnector reverts the wireless transport.
type Disconnector interface {
	Disconnect(ctx context.Context, addr string) error
}

type exitEvent struct {
	proc process.Process
	err  error
}

// RelaySession is the registry of a running relay.
type RelaySession struct {
	ID string

	// ShutdownTimeout bounds Shutdown (default 10s).
	ShutdownTimeout time.Duration
	// DisconnectReserve is the part of ShutdownTimeout held back for the
	// disconnect (default 2s, at most half the timeout).
	DisconnectReserve time.Duration

	logger  *util.Logger
	metrics *metrics.Collector
	bridge  Disconnector

	mu         sync.Mutex
	procs      []process.Process
	exited     map[process.Process]bool
	mode       transport.Mode
	deviceAddr string
	cancelled  bool

	exits     chan exitEvent
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an empty WIRED session.  bridge is used once, at
// shutdown, if the session was attached to a wireless transport.
func New(bridge Disconnector, logger *util.Logger, m *metrics.Collector) *RelaySession {
	id := uuid.NewString()
	if logger != nil {
		logger = logger.With("session", id[:8])
	}
	return &RelaySession{
		ID:                id,
		ShutdownTimeout:   10 * time.Second,
		DisconnectReserve: 2 * time.Second,
		logger:            logger,
		metrics:           m,
		bridge:            bridge,
		exited:            make(map[process.Process]bool),
		mode:              transport.Wired,
		exits:             make(chan exitEvent),
		done:              make(chan struct{}),
	}
}

// Logger returns the session-scoped logger.
func (s *RelaySession) Logger() *util.Logger { return s.logger }

// Attach records the transport the session runs over.  A WIRELESS
// handle makes Shutdown disconnect it.
func (s *RelaySession) Attach(h transport.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = h.Mode
	s.deviceAddr = h.Addr
}

// Mode reports the current transport mode.
func (s *RelaySession) Mode() transport.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// DeviceAddr is the wireless transport address, if attached.
func (s *RelaySession) DeviceAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceAddr
}

// Cancelled reports whether Wait returned because of cancellation.
func (s *RelaySession) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Track appends p to the registry and starts watching for its exit.
func (s *RelaySession) Track(p process.Process) {
	s.mu.Lock()
	s.procs = append(s.procs, p)
	s.mu.Unlock()

	s.metrics.ProcessStarted()
	if s.logger != nil {
		s.logger.Verbose("started %s: %s", p.Role(), p)
	}

	go func() {
		err := p.Wait()
		s.mu.Lock()
		s.exited[p] = true
		s.mu.Unlock()
		s.metrics.ProcessExited()

		select {
		case s.exits <- exitEvent{proc: p, err: err}:
		case <-s.done:
		}
	}()
}

// Processes returns the tracked processes in launch order.
func (s *RelaySession) Processes() []process.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]process.Process(nil), s.procs...)
}

// Wait blocks until ctx is cancelled or a tracked process exits.  An
// unexpected exit is reported as ReasonProcessExited with an error
// wrapping ErrPipelineBroken.
func (s *RelaySession) Wait(ctx context.Context) (Reason, error) {
	select {
	case <-s.done:
		return ReasonCancelled, mimicerr.ErrSessionClosed
	default:
	}

	select {
	case <-ctx.Done():
		s.mu.Lock()
		s.cancelled = true
		s.mu.Unlock()
		return ReasonCancelled, nil
	case <-s.done:
		return ReasonCancelled, mimicerr.ErrSessionClosed
	case ev := <-s.exits:
		return classify(ev)
	}
}

func classify(ev exitEvent) (Reason, error) {
	role := ev.proc.Role()
	if ev.err == nil {
		switch role {
		case process.RoleCapture, process.RoleRelay:
			return ReasonTimeLimit, nil
		case process.RolePlayer:
			return ReasonPlayerClosed, nil
		case process.RoleForwarder, process.RoleListener:
			return ReasonStreamEnded, nil
		}
		return ReasonProcessExited, fmt.Errorf("%w: %s exited", mimicerr.ErrPipelineBroken, role)
	}
	if code := process.ExitCode(ev.err); code >= 0 {
		return ReasonProcessExited, fmt.Errorf("%w: %s exited with status %d: %w", mimicerr.ErrPipelineBroken, role, code, ev.err)
	}
	return ReasonProcessExited, fmt.Errorf("%w: %s exited: %w", mimicerr.ErrPipelineBroken, role, ev.err)
}

// Shutdown kills every tracked process in reverse launch order, each
// exactly once, and then disconnects the wireless transport if the
// session is attached to one.  It ignores cancellation of ctx.  The kill
// phase gets ShutdownTimeout minus DisconnectReserve; a kill still
// running when that runs out is left to finish in the background and the
// next one is started.  The disconnect always gets its own reserve.
// Only the first call does anything; later calls return
// ErrSessionClosed.
func (s *RelaySession) Shutdown(ctx context.Context) error {
	first := false
	s.closeOnce.Do(func() { first = true })
	if !first {
		return mimicerr.ErrSessionClosed
	}
	close(s.done)

	timeout := s.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	reserve := s.DisconnectReserve
	if reserve <= 0 || reserve > timeout/2 {
		reserve = timeout / 2
	}
	base := context.WithoutCancel(ctx)

	s.mu.Lock()
	procs := append([]process.Process(nil), s.procs...)
	mode, addr := s.mode, s.deviceAddr
	s.mu.Unlock()

	killCtx, cancelKill := context.WithTimeout(base, timeout-reserve)
	errs := s.killAll(killCtx, procs)
	cancelKill()

	if mode == transport.Wireless && s.bridge != nil {
		dctx, cancel := context.WithTimeout(base, reserve)
		err := s.bridge.Disconnect(dctx, addr)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("disconnect %s: %w", addr, err))
		} else if s.logger != nil {
			s.logger.Verbose("disconnected %s", addr)
		}
	}
	return errors.Join(errs...)
}

// killAll starts each kill in reverse launch order and waits for it
// until ctx expires.
func (s *RelaySession) killAll(ctx context.Context, procs []process.Process) []error {
	var errs []error
	for i := len(procs) - 1; i >= 0; i-- {
		p := procs[i]
		s.mu.Lock()
		gone := s.exited[p]
		s.mu.Unlock()

		result := make(chan error, 1)
		go func() { result <- p.Kill() }()

		select {
		case err := <-result:
			if err != nil {
				errs = append(errs, err)
				continue
			}
			s.metrics.ProcessKilled()
			if s.logger != nil {
				if gone {
					s.logger.Debug("%s had already exited", p.Role())
				} else {
					s.logger.Debug("stopped %s", p.Role())
				}
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("stop %s: %w", p.Role(), ctx.Err()))
		}
	}
	return errs
}

// Closed reports whether Shutdown has been called.
func (s *RelaySession) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}
