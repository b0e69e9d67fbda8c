// Package metrics tracks runtime statistics of a mirroring session:
// how many processes the relay launched, how they ended, how many
// remote commands ran and how many bytes the built-in listener moved.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for one mimic run.
type Collector struct {
	processesStarted atomic.Int64
	processesExited  atomic.Int64
	processesKilled  atomic.Int64
	remoteCommands   atomic.Int64
	remoteFailures   atomic.Int64
	connectAttempts  atomic.Int64
	bytesRelayed     atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	relayStarted time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Process metrics ──────────────────────────────────────────────────

// ProcessStarted records a spawned relay process.
func (c *Collector) ProcessStarted() {
	if c == nil {
		return
	}
	c.processesStarted.Add(1)
}

// ProcessExited records a relay process that ended on its own.
func (c *Collector) ProcessExited() {
	if c == nil {
		return
	}
	c.processesExited.Add(1)
}

// ProcessKilled records a kill issued during shutdown.
func (c *Collector) ProcessKilled() {
	if c == nil {
		return
	}
	c.processesKilled.Add(1)
}

// ProcessesStarted returns the number of spawned processes.
func (c *Collector) ProcessesStarted() int64 {
	if c == nil {
		return 0
	}
	return c.processesStarted.Load()
}

// ProcessesKilled returns the number of kills issued.
func (c *Collector) ProcessesKilled() int64 {
	if c == nil {
		return 0
	}
	return c.processesKilled.Load()
}

// RelayStarted stamps the moment the pipeline finished launching.
func (c *Collector) RelayStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.relayStarted = time.Now()
	c.mu.Unlock()
}

// ── Remote metrics ───────────────────────────────────────────────────

// RemoteCommand records one debug-bridge command and whether it failed.
func (c *Collector) RemoteCommand(failed bool) {
	if c == nil {
		return
	}
	c.remoteCommands.Add(1)
	if failed {
		c.remoteFailures.Add(1)
	}
}

// RemoteCommands returns the number of debug-bridge commands issued.
func (c *Collector) RemoteCommands() int64 {
	if c == nil {
		return 0
	}
	return c.remoteCommands.Load()
}

// ConnectAttempt records one wireless connect attempt.
func (c *Collector) ConnectAttempt() {
	if c == nil {
		return
	}
	c.connectAttempts.Add(1)
}

// ConnectAttempts returns the number of wireless connect attempts.
func (c *Collector) ConnectAttempts() int64 {
	if c == nil {
		return 0
	}
	return c.connectAttempts.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesRelayed records n stream bytes moved by the built-in listener.
func (c *Collector) BytesRelayed(n int64) {
	if c == nil {
		return
	}
	c.bytesRelayed.Add(n)
}

// TotalBytesRelayed returns the bytes moved so far.
func (c *Collector) TotalBytesRelayed() int64 {
	if c == nil {
		return 0
	}
	return c.bytesRelayed.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError stores the most recent failure message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	Streaming        string `json:"streaming,omitempty"`
	ProcessesStarted int64  `json:"processes_started"`
	ProcessesExited  int64  `json:"processes_exited"`
	ProcessesKilled  int64  `json:"processes_killed"`
	RemoteCommands   int64  `json:"remote_commands"`
	RemoteFailures   int64  `json:"remote_failures"`
	ConnectAttempts  int64  `json:"connect_attempts"`
	BytesRelayed     int64  `json:"bytes_relayed"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:           time.Since(c.startTime).Truncate(time.Second).String(),
		ProcessesStarted: c.processesStarted.Load(),
		ProcessesExited:  c.processesExited.Load(),
		ProcessesKilled:  c.processesKilled.Load(),
		RemoteCommands:   c.remoteCommands.Load(),
		RemoteFailures:   c.remoteFailures.Load(),
		ConnectAttempts:  c.connectAttempts.Load(),
		BytesRelayed:     c.bytesRelayed.Load(),
	}
	if !c.relayStarted.IsZero() {
		s.Streaming = time.Since(c.relayStarted).Truncate(time.Second).String()
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as a compact JSON string.
func (c *Collector) JSON() string {
	data, _ := json.Marshal(c.Snapshot())
	return string(data)
}
