package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mimicerr "mimic/internal/errors"
)

func TestExecSpawner_ExitStatus(t *testing.T) {
	s := &ExecSpawner{}

	ok, err := s.Spawn(context.Background(), Spec{Role: RoleCapture, Name: "true"})
	require.NoError(t, err)
	assert.NoError(t, ok.Wait())
	assert.NoError(t, ok.Wait(), "Wait is repeatable")
	assert.Equal(t, RoleCapture, ok.Role())

	bad, err := s.Spawn(context.Background(), Spec{Role: RolePlayer, Name: "sh", Args: []string{"-c", "exit 3"}})
	require.NoError(t, err)
	werr := bad.Wait()
	require.Error(t, werr)
	assert.Equal(t, 3, ExitCode(werr))
}

func TestExecSpawner_KillRunning(t *testing.T) {
	s := &ExecSpawner{Grace: 200 * time.Millisecond}
	p, err := s.Spawn(context.Background(), Spec{Role: RoleListener, Name: "sleep", Args: []string{"30"}})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, p.Kill())
	assert.Error(t, p.Wait(), "killed process reports a signal exit")
	assert.Equal(t, -1, ExitCode(p.Wait()))
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.NoError(t, p.Kill(), "second kill is harmless")
}

func TestExecSpawner_KillEscalates(t *testing.T) {
	s := &ExecSpawner{Grace: 100 * time.Millisecond}
	p, err := s.Spawn(context.Background(), Spec{
		Role: RoleForwarder, Name: "sh", Args: []string{"-c", "trap '' TERM; sleep 30"},
	})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond) // let the trap install

	require.NoError(t, p.Kill())
	assert.Error(t, p.Wait())
}

func TestExecSpawner_KillExited(t *testing.T) {
	p, err := (&ExecSpawner{}).Spawn(context.Background(), Spec{Role: RoleCapture, Name: "true"})
	require.NoError(t, err)
	require.NoError(t, p.Wait())
	assert.NoError(t, p.Kill())
}

func TestExecSpawner_StdoutToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.h264")
	p, err := (&ExecSpawner{}).Spawn(context.Background(), Spec{
		Role: RoleListener, Name: "echo", Args: []string{"frame"}, StdoutPath: out,
	})
	require.NoError(t, err)
	require.NoError(t, p.Wait())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "frame\n", string(data))
	assert.True(t, strings.HasSuffix(p.String(), "echo frame"))
}

func TestExecSpawner_StdoutToFIFO(t *testing.T) {
	fifo := filepath.Join(t.TempDir(), "mimic_device")
	require.NoError(t, MakeFIFO(fifo))

	// Spawn must not block even though nothing reads the pipe yet.
	p, err := (&ExecSpawner{}).Spawn(context.Background(), Spec{
		Role: RoleListener, Name: "echo", Args: []string{"nal"}, StdoutPath: fifo,
	})
	require.NoError(t, err)

	r, err := os.Open(fifo)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 16)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "nal\n", string(buf[:n]))
	require.NoError(t, p.Wait())
}

func TestExecSpawner_MissingBinary(t *testing.T) {
	_, err := (&ExecSpawner{}).Spawn(context.Background(), Spec{Role: RolePlayer, Name: "/nonexistent/mplayer"})
	assert.Error(t, err)
}

func TestExecSpawner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&ExecSpawner{}).Spawn(ctx, Spec{Role: RolePlayer, Name: "true"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMakeFIFO_ReplacesStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipe")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	require.NoError(t, MakeFIFO(path))
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeNamedPipe)

	// Running again on an existing pipe recreates it.
	require.NoError(t, MakeFIFO(path))
}

func TestCheckTools(t *testing.T) {
	orig := LookPath
	t.Cleanup(func() { LookPath = orig })

	LookPath = func(name string) (string, error) {
		if name == "nc" {
			return "", errors.New("not found")
		}
		return "/usr/bin/" + name, nil
	}

	assert.NoError(t, CheckTools("adb", "mplayer"))

	err := CheckTools("adb", "nc", "mplayer")
	var tm *mimicerr.ToolingMissingError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, "nc", tm.Tool)
}
