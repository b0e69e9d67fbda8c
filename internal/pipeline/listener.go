package pipeline

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"mimic/internal/metrics"
	"mimic/internal/process"
	"mimic/util"
)

// Listener is the in-process replacement for the external nc: it
// accepts a single connection and copies it into a named pipe.  It
// satisfies process.Process so the session treats it like any other
// relay stage.
type Listener struct {
	addr    string
	ln      net.Listener
	out     *os.File
	logger  *util.Logger
	metrics *metrics.Collector

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	killOnce sync.Once
}

// Listen binds addr and starts serving into the pipe (or file) at out.
// The listener is ready when Listen returns.
func Listen(addr, out string, logger *util.Logger, m *metrics.Collector) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	f, err := process.OpenRedirect(out)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("open %s: %w", out, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		addr:    ln.Addr().String(),
		ln:      ln,
		out:     f,
		logger:  logger,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	if logger != nil {
		logger.Verbose("listening on %s (tcp)", l.addr)
	}
	go l.serve()
	return l, nil
}

// Addr is the bound address.
func (l *Listener) Addr() string { return l.addr }

func (l *Listener) serve() {
	defer close(l.done)
	defer l.out.Close()

	// Kill unblocks a pending accept or a write the player is not
	// draining.
	go func() {
		select {
		case <-l.ctx.Done():
			l.ln.Close()
			l.out.Close()
		case <-l.done:
		}
	}()

	conn, err := l.ln.Accept()
	l.ln.Close()
	if err != nil {
		if l.ctx.Err() == nil {
			l.err = fmt.Errorf("accept: %w", err)
		}
		return
	}
	if l.logger != nil {
		l.logger.Verbose("connection from %s", conn.RemoteAddr())
	}

	n, err := util.Pump(l.ctx, l.out, conn, l.metrics.BytesRelayed)
	if l.logger != nil {
		l.logger.Debug("listener relayed %d bytes", n)
	}
	if err != nil && !util.IsHarmless(err) {
		l.err = err
	}
}

func (l *Listener) Role() process.Role { return process.RoleListener }
func (l *Listener) String() string     { return "builtin listener on " + l.addr }

func (l *Listener) Wait() error {
	<-l.done
	return l.err
}

func (l *Listener) Kill() error {
	l.killOnce.Do(func() {
		l.cancel()
		<-l.done
	})
	return nil
}
