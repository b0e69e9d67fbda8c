// Package transport moves the debug bridge from the cable to the
// network and back.
//
// Switch puts the device's adb daemon into TCP mode and connects to it
// with a bounded retry loop, since the daemon restarts before it starts
// listening.  Disconnect reverts the host side of the handover.
package transport

import (
	"context"
	"net/netip"
	"time"

	mimicerr "mimic/internal/errors"
	"mimic/internal/metrics"
	"mimic/internal/retry"
	"mimic/util"
)

// Mode is the transport the bridge currently uses.
type Mode int

const (
	Wired Mode = iota
	Wireless
)

func (m Mode) String() string {
	if m == Wireless {
		return "WIRELESS"
	}
	return "WIRED"
}

// Bridge is the subset of the adb client the handover needs.
type Bridge interface {
	TCPIP(ctx context.Context, port int) error
	Connect(ctx context.Context, addr string) error
	Disconnect(ctx context.Context, addr string) error
}

// Handle describes an established wireless transport.
type Handle struct {
	Addr     string
	Mode     Mode
	Attempts int
}

// Switcher performs the wired→wireless handover.
type Switcher struct {
	Bridge Bridge
	// Port is the device's wireless adb port (default 5555).
	Port int
	// Policy bounds the connect loop.  Its OnRetry is overwritten.
	Policy  retry.Policy
	Metrics *metrics.Collector
	Logger  *util.Logger
}

// NewSwitcher returns a Switcher whose connect loop waits settle before
// the first attempt and gives up after timeout.
func NewSwitcher(b Bridge, port int, settle, timeout time.Duration, logger *util.Logger, m *metrics.Collector) *Switcher {
	return &Switcher{
		Bridge: b,
		Port:   port,
		Policy: retry.Policy{
			Settle:     settle,
			Delay:      500 * time.Millisecond,
			MaxDelay:   3 * time.Second,
			Multiplier: 1.5,
			Timeout:    timeout,
			Jitter:     true,
		},
		Metrics: m,
		Logger:  logger,
	}
}

// Switch enables the wireless listener on the device and connects to
// deviceIP.  A failure to enable the listener is returned as is; an
// exhausted connect loop becomes a TransportError.
func (s *Switcher) Switch(ctx context.Context, deviceIP netip.Addr) (Handle, error) {
	port := s.Port
	if port == 0 {
		port = 5555
	}
	addr := util.FormatAddr(deviceIP.String(), port)

	if err := s.Bridge.TCPIP(ctx, port); err != nil {
		return Handle{Mode: Wired}, err
	}

	policy := s.Policy
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		if s.Logger != nil {
			s.Logger.Verbose("connect %s attempt %d failed: %v (retry in %s)", addr, attempt, err, wait.Round(time.Millisecond))
		}
	}
	attempts, err := policy.Do(ctx, func(ctx context.Context, _ int) error {
		s.Metrics.ConnectAttempt()
		return s.Bridge.Connect(ctx, addr)
	})
	if err != nil {
		s.Metrics.RecordError("connect " + addr)
		return Handle{Addr: addr, Mode: Wired, Attempts: attempts},
			&mimicerr.TransportError{Addr: addr, Attempts: attempts, Err: err}
	}

	if s.Logger != nil {
		s.Logger.Info("wireless transport up at %s", addr)
	}
	return Handle{Addr: addr, Mode: Wireless, Attempts: attempts}, nil
}

// Disconnect drops the wireless transport at addr.
func (s *Switcher) Disconnect(ctx context.Context, addr string) error {
	return s.Bridge.Disconnect(ctx, addr)
}
