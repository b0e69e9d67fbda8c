package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// ShapeSocket streams captured video over a plain TCP connection
	// into a local listener that feeds a named pipe.
	ShapeSocket = "socket"

	// ShapeRTSP runs an RTSP relay on the device; the player pulls the
	// stream itself.
	ShapeRTSP = "rtsp"

	// ListenerNetcat spawns the local nc binary as the listener.
	ListenerNetcat = "nc"

	// ListenerBuiltin accepts the stream inside the mimic process.
	ListenerBuiltin = "builtin"
)

const (
	DefaultADB    = "adb"
	DefaultNetcat = "nc"
	DefaultPlayer = "mplayer"

	// DefaultBinDir is where the device-side helper binaries are found
	// locally.
	DefaultBinDir = "bin"

	// DefaultDeviceDir is the fixed temp directory on the device,
	// shared across runs.
	DefaultDeviceDir = "/data/local/tmp"

	// DefaultADBPort is the debug-bridge wireless port.
	DefaultADBPort = 5555

	// DefaultRTSPPort is the media-protocol port of the device relay.
	DefaultRTSPPort = 5554

	// DefaultListenPort is where the local listener accepts the
	// device's forwarded stream.
	DefaultListenPort = 58247

	// DefaultBitRate is the capture bit rate in bits per second.
	DefaultBitRate = 4000000

	// DefaultTimeLimit is the capture's self-imposed wall-clock limit.
	DefaultTimeLimit = 1800 * time.Second

	// DefaultFPS is passed to the player for the raw elementary stream.
	DefaultFPS = 60

	DefaultMinAPILevel = 19
	DefaultABI         = "armeabi"

	DefaultCaptureBinary = "mimic_arm"
	DefaultNetcatBinary  = "nc_arm"
	DefaultMkfifoBinary  = "mkfifo_arm"
	DefaultRelayBinary   = "mimic-relay_arm"

	// DefaultDevicePipe is the FIFO the capture writes into on the
	// device (socket shape).
	DefaultDevicePipe = "mimic_host"

	// DefaultHostPipe is the FIFO the listener writes into and the
	// player reads from.
	DefaultHostPipe = "mimic_device"

	// DefaultConnectSettle is the first wait between enabling the
	// wireless listener and connecting to it.
	DefaultConnectSettle = 1 * time.Second

	// DefaultConnectTimeout bounds the whole connect retry loop.
	DefaultConnectTimeout = 15 * time.Second

	// DefaultListenerSettle is how long the nc listener gets before
	// the player starts reading the pipe.
	DefaultListenerSettle = 3 * time.Second

	// DefaultForwarderSettle is how long the forwarder gets to connect
	// before capture starts.
	DefaultForwarderSettle = 2 * time.Second

	// DefaultRelaySettle is how long the device relay gets before the
	// player connects (rtsp shape).
	DefaultRelaySettle = 2 * time.Second

	// DefaultShutdownTimeout bounds the cleanup path.
	DefaultShutdownTimeout = 10 * time.Second

	// DefaultKillGrace is how long a process gets between SIGTERM and
	// SIGKILL.
	DefaultKillGrace = 2 * time.Second
)

// Default returns a Config populated with every default value.
func Default() *Config {
	return &Config{
		ADBPath:         DefaultADB,
		NetcatPath:      DefaultNetcat,
		PlayerPath:      DefaultPlayer,
		Shape:           ShapeSocket,
		Listener:        ListenerNetcat,
		BinDir:          DefaultBinDir,
		DeviceDir:       DefaultDeviceDir,
		ADBPort:         DefaultADBPort,
		RTSPPort:        DefaultRTSPPort,
		ListenPort:      DefaultListenPort,
		BitRate:         DefaultBitRate,
		TimeLimit:       DefaultTimeLimit,
		FPS:             DefaultFPS,
		MinAPILevel:     DefaultMinAPILevel,
		ABI:             DefaultABI,
		CaptureBinary:   DefaultCaptureBinary,
		NetcatBinary:    DefaultNetcatBinary,
		MkfifoBinary:    DefaultMkfifoBinary,
		RelayBinary:     DefaultRelayBinary,
		DevicePipe:      DefaultDevicePipe,
		HostPipe:        DefaultHostPipe,
		ConnectSettle:   DefaultConnectSettle,
		ConnectTimeout:  DefaultConnectTimeout,
		ListenerSettle:  DefaultListenerSettle,
		ForwarderSettle: DefaultForwarderSettle,
		RelaySettle:     DefaultRelaySettle,
		ShutdownTimeout: DefaultShutdownTimeout,
		KillGrace:       DefaultKillGrace,
		Verbose:         1,
	}
}
