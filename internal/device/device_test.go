package device

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mimicerr "mimic/internal/errors"
)

// fakeDevice models the device temp directory: rm, chmod, push and
// mkfifo update an in-memory file table.
type fakeDevice struct {
	props    map[string]string
	files    map[string]string // path → mode
	commands []string
	pushes   int
}

func newFakeDevice(props map[string]string) *fakeDevice {
	return &fakeDevice{props: props, files: map[string]string{}}
}

func (d *fakeDevice) Run(_ context.Context, command string) (string, error) {
	d.commands = append(d.commands, command)
	fields := strings.Fields(command)
	switch {
	case fields[0] == "getprop":
		return d.props[fields[1]], nil
	case fields[0] == "rm":
		delete(d.files, fields[len(fields)-1])
	case fields[0] == "chmod":
		if _, ok := d.files[fields[2]]; !ok {
			return "", &mimicerr.RemoteCommandError{Command: command, ExitCode: 1}
		}
		d.files[fields[2]] = fields[1]
	case strings.HasSuffix(fields[0], "mkfifo_arm"):
		if _, ok := d.files[fields[1]]; ok {
			return "", &mimicerr.RemoteCommandError{Command: command, ExitCode: 1, Output: "File exists"}
		}
		d.files[fields[1]] = "fifo"
	}
	return "", nil
}

func (d *fakeDevice) Push(_ context.Context, _, remote string) error {
	d.pushes++
	d.commands = append(d.commands, "push "+remote)
	d.files[remote] = "644"
	return nil
}

func (d *fakeDevice) mutations() []string {
	var out []string
	for _, c := range d.commands {
		if !strings.HasPrefix(c, "getprop") {
			out = append(out, c)
		}
	}
	return out
}

func TestValidate_APILevel(t *testing.T) {
	req := Requirements{MinAPILevel: 19, ABI: "armeabi"}
	tests := []struct {
		sdk string
		ok  bool
	}{
		{"18", false},
		{"19", true},
		{"28", true},
		{"", false},
		{"KitKat", false},
	}
	for _, tt := range tests {
		t.Run("sdk="+tt.sdk, func(t *testing.T) {
			dev := newFakeDevice(map[string]string{
				"ro.build.version.sdk": tt.sdk,
				"ro.product.cpu.abi2":  "armeabi",
				"wifi.interface":       "wlan0",
			})
			p, err := Validate(context.Background(), dev, req)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, "armeabi", p.CPUAbi)
				assert.Equal(t, "wlan0", p.WirelessInterface)
				return
			}
			var ud *mimicerr.UnsupportedDeviceError
			require.ErrorAs(t, err, &ud)
			assert.Equal(t, "api", ud.Field)
			assert.Empty(t, dev.mutations(), "rejected device must not be touched")
		})
	}
}

func TestValidate_ABI(t *testing.T) {
	req := Requirements{MinAPILevel: 19, ABI: "armeabi"}
	tests := []struct {
		name  string
		abi2  string
		abi   string
		ok    bool
		value string
	}{
		{"abi2 matches", "armeabi", "armeabi-v7a", true, "armeabi"},
		{"abi2 mismatch", "x86", "armeabi", false, "x86"},
		{"abi fallback matches", "", "armeabi", true, "armeabi"},
		{"abi fallback mismatch", "", "x86_64", false, "x86_64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice(map[string]string{
				"ro.build.version.sdk": "19",
				"ro.product.cpu.abi2":  tt.abi2,
				"ro.product.cpu.abi":   tt.abi,
			})
			p, err := Validate(context.Background(), dev, req)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.value, p.CPUAbi)
				return
			}
			var ud *mimicerr.UnsupportedDeviceError
			require.ErrorAs(t, err, &ud)
			assert.Equal(t, "abi", ud.Field)
			assert.Equal(t, tt.value, ud.Value)
			assert.Empty(t, dev.mutations())
		})
	}
}

func writeBinaries(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("\x7fELF"), 0o755))
	}
	return dir
}

func TestPrepareBinaries_Idempotent(t *testing.T) {
	names := []string{"mimic_arm", "nc_arm", "mkfifo_arm"}
	dev := newFakeDevice(nil)
	p := &Preparer{Shell: dev, Pusher: dev, LocalDir: writeBinaries(t, names...), DeviceDir: "/data/local/tmp"}

	require.NoError(t, p.PrepareBinaries(context.Background(), names))
	first := sortedFiles(dev.files)

	require.NoError(t, p.PrepareBinaries(context.Background(), names))
	assert.Equal(t, first, sortedFiles(dev.files), "no stale files accumulate")
	assert.Equal(t, 6, dev.pushes)

	for _, n := range names {
		assert.Equal(t, "755", dev.files["/data/local/tmp/"+n])
	}
	assert.Equal(t, []string{
		"rm -f /data/local/tmp/mimic_arm",
		"push /data/local/tmp/mimic_arm",
		"chmod 755 /data/local/tmp/mimic_arm",
	}, dev.commands[:3])
}

func TestPrepareBinaries_MissingLocal(t *testing.T) {
	dev := newFakeDevice(nil)
	p := &Preparer{Shell: dev, Pusher: dev, LocalDir: writeBinaries(t, "mimic_arm"), DeviceDir: "/data/local/tmp"}

	err := p.PrepareBinaries(context.Background(), []string{"mimic_arm", "nc_arm"})
	var tm *mimicerr.ToolingMissingError
	require.ErrorAs(t, err, &tm)
	assert.True(t, strings.HasSuffix(tm.Tool, "nc_arm"))
	assert.Empty(t, dev.commands, "nothing is pushed when a local binary is missing")
}

func TestPreparePipe_Recreates(t *testing.T) {
	dev := newFakeDevice(nil)
	p := &Preparer{Shell: dev, Pusher: dev, DeviceDir: "/data/local/tmp"}

	require.NoError(t, p.PreparePipe(context.Background(), "mkfifo_arm", "mimic_host"))
	require.NoError(t, p.PreparePipe(context.Background(), "mkfifo_arm", "mimic_host"), "existing pipe is removed first")
	assert.Equal(t, "666", dev.files["/data/local/tmp/mimic_host"])
	assert.Equal(t, []string{
		"rm -f /data/local/tmp/mimic_host",
		"/data/local/tmp/mkfifo_arm /data/local/tmp/mimic_host",
		"chmod 666 /data/local/tmp/mimic_host",
	}, dev.commands[:3])
}

func sortedFiles(m map[string]string) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
