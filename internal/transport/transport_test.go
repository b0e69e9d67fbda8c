package transport

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mimicerr "mimic/internal/errors"
	"mimic/internal/metrics"
	"mimic/internal/retry"
	"mimic/util"
)

type fakeBridge struct {
	mu           sync.Mutex
	tcpipErr     error
	failConnects int
	connectErr   error
	tcpipPorts   []int
	connects     []string
	disconnects  []string
}

func (b *fakeBridge) TCPIP(_ context.Context, port int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tcpipPorts = append(b.tcpipPorts, port)
	return b.tcpipErr
}

func (b *fakeBridge) Connect(_ context.Context, addr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connects = append(b.connects, addr)
	if b.connectErr != nil {
		return b.connectErr
	}
	if len(b.connects) <= b.failConnects {
		return errors.New("unable to connect to " + addr + ": Connection refused")
	}
	return nil
}

func (b *fakeBridge) Disconnect(_ context.Context, addr string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnects = append(b.disconnects, addr)
	return nil
}

func fastSwitcher(b Bridge, m *metrics.Collector, attempts int) *Switcher {
	return &Switcher{
		Bridge:  b,
		Port:    5555,
		Policy:  retry.Policy{Delay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxAttempts: attempts, Timeout: 2 * time.Second},
		Metrics: m,
		Logger:  util.NewLogger(0),
	}
}

var deviceIP = netip.MustParseAddr("192.168.1.42")

func TestSwitch_ConnectsAfterRetries(t *testing.T) {
	b := &fakeBridge{failConnects: 2}
	m := metrics.New()

	h, err := fastSwitcher(b, m, 5).Switch(context.Background(), deviceIP)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.42:5555", h.Addr)
	assert.Equal(t, Wireless, h.Mode)
	assert.Equal(t, 3, h.Attempts)
	assert.Equal(t, []int{5555}, b.tcpipPorts)
	assert.EqualValues(t, 3, m.ConnectAttempts())
}

func TestSwitch_Exhausted(t *testing.T) {
	b := &fakeBridge{failConnects: 100}
	m := metrics.New()

	h, err := fastSwitcher(b, m, 3).Switch(context.Background(), deviceIP)
	var te *mimicerr.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "192.168.1.42:5555", te.Addr)
	assert.Equal(t, 3, te.Attempts)
	assert.ErrorIs(t, err, retry.ErrBudgetExhausted)
	assert.Equal(t, Wired, h.Mode)
	assert.Len(t, b.connects, 3)
	assert.EqualValues(t, 3, m.ConnectAttempts())
}

func TestSwitch_PermanentFailureStopsRetrying(t *testing.T) {
	denied := errors.New("adb connect 192.168.1.42:5555: failed to authenticate to 192.168.1.42:5555")
	b := &fakeBridge{connectErr: retry.Permanent(denied)}

	h, err := fastSwitcher(b, nil, 0).Switch(context.Background(), deviceIP)
	var te *mimicerr.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Attempts)
	assert.ErrorIs(t, err, denied)
	assert.NotErrorIs(t, err, retry.ErrBudgetExhausted)
	assert.Equal(t, Wired, h.Mode)
	assert.Len(t, b.connects, 1)
}

func TestNewSwitcher_Policy(t *testing.T) {
	s := NewSwitcher(&fakeBridge{}, 5555, time.Second, 15*time.Second, nil, nil)
	assert.True(t, s.Policy.Jitter)
	assert.Equal(t, time.Second, s.Policy.Settle)
	assert.Equal(t, 15*time.Second, s.Policy.Timeout)
	assert.Zero(t, s.Policy.MaxAttempts)
}

func TestSwitch_TCPIPFailureSkipsConnect(t *testing.T) {
	boom := &mimicerr.RemoteCommandError{Command: "adb -d tcpip 5555", ExitCode: 1, Output: "error: no devices/emulators found"}
	b := &fakeBridge{tcpipErr: boom}

	_, err := fastSwitcher(b, nil, 3).Switch(context.Background(), deviceIP)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, b.connects)
}

func TestSwitch_Cancelled(t *testing.T) {
	b := &fakeBridge{failConnects: 100}
	s := fastSwitcher(b, nil, 0)
	s.Policy.Delay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := s.Switch(ctx, deviceIP)
	var te *mimicerr.TransportError
	require.ErrorAs(t, err, &te)
	assert.Less(t, time.Since(start), time.Second)
}

func TestDisconnect(t *testing.T) {
	b := &fakeBridge{}
	require.NoError(t, fastSwitcher(b, nil, 1).Disconnect(context.Background(), "192.168.1.42:5555"))
	assert.Equal(t, []string{"192.168.1.42:5555"}, b.disconnects)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "WIRED", Wired.String())
	assert.Equal(t, "WIRELESS", Wireless.String())
}
