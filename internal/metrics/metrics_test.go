package metrics

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Processes(t *testing.T) {
	c := New()
	c.ProcessStarted()
	c.ProcessStarted()
	c.ProcessExited()
	c.ProcessKilled()
	c.ProcessKilled()

	s := c.Snapshot()
	assert.EqualValues(t, 2, s.ProcessesStarted)
	assert.EqualValues(t, 1, s.ProcessesExited)
	assert.EqualValues(t, 2, s.ProcessesKilled)
	assert.EqualValues(t, 2, c.ProcessesKilled())
}

func TestCollector_Remote(t *testing.T) {
	c := New()
	c.RemoteCommand(false)
	c.RemoteCommand(true)
	c.ConnectAttempt()

	s := c.Snapshot()
	assert.EqualValues(t, 2, c.RemoteCommands())
	assert.EqualValues(t, 1, s.RemoteFailures)
	assert.EqualValues(t, 1, c.ConnectAttempts())
}

func TestCollector_ConcurrentBytes(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.BytesRelayed(100)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 5000, c.TotalBytesRelayed())
}

func TestCollector_Errors(t *testing.T) {
	c := New()
	assert.Empty(t, c.Snapshot().LastError)

	c.RecordError("player exited")
	s := c.Snapshot()
	assert.NotEmpty(t, s.LastError)
	assert.Equal(t, "player exited", s.LastErrorMessage)
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.ProcessStarted()
	c.RelayStarted()

	var s Snapshot
	require.NoError(t, json.Unmarshal([]byte(c.JSON()), &s))
	assert.EqualValues(t, 1, s.ProcessesStarted)
	assert.NotEmpty(t, s.Streaming)
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.ProcessStarted()
	c.ProcessExited()
	c.ProcessKilled()
	c.RemoteCommand(true)
	c.ConnectAttempt()
	c.BytesRelayed(10)
	c.RecordError("x")
	c.RelayStarted()

	assert.Zero(t, c.ProcessesStarted())
	assert.Zero(t, c.TotalBytesRelayed())
	assert.Equal(t, Snapshot{}, c.Snapshot())
}
