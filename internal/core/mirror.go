package core

import (
	"context"
	"errors"

	"mimic/config"
	"mimic/internal/adb"
	"mimic/internal/device"
	mimicerr "mimic/internal/errors"
	"mimic/internal/metrics"
	"mimic/internal/netdisc"
	"mimic/internal/pipeline"
	"mimic/internal/process"
	"mimic/internal/session"
	"mimic/internal/transport"
	"mimic/util"
)

// MirrorMode runs a full mirroring session: discovery, device
// preparation, the wireless handover, the relay pipeline, and one
// teardown when the session ends.
type MirrorMode struct {
	Config     *config.Config
	ADB        *adb.Client
	Resolver   *netdisc.Resolver
	Spawner    process.Spawner
	Shape      pipeline.Shape
	CheckTools func(names ...string) error
	OnReady    func(Plan)
	Metrics    *metrics.Collector
	Logger     *util.Logger
}

// Run implements Mode.  It returns nil when the session ends normally
// (interrupt, time limit, player closed, stream ended) and an error wrapping
// ErrPipelineBroken when a relay stage dies.
func (m *MirrorMode) Run(ctx context.Context) error {
	cfg := m.Config

	plan, err := discover(ctx, cfg, m.ADB, m.Resolver, m.CheckTools, m.Logger)
	if err != nil {
		return m.setupFailed(ctx, err)
	}

	usb := m.ADB.USB()
	prep := &device.Preparer{
		Shell:     usb,
		Pusher:    m.ADB,
		LocalDir:  cfg.BinDir,
		DeviceDir: cfg.DeviceDir,
		Logger:    m.Logger,
	}
	if err := prep.PrepareBinaries(ctx, cfg.DeviceBinaries()); err != nil {
		return m.setupFailed(ctx, err)
	}
	if cfg.Shape == config.ShapeSocket {
		if err := prep.PreparePipe(ctx, cfg.MkfifoBinary, cfg.DevicePipe); err != nil {
			return m.setupFailed(ctx, err)
		}
	}

	sw := transport.NewSwitcher(m.ADB, cfg.ADBPort, cfg.ConnectSettle, cfg.ConnectTimeout, m.Logger, m.Metrics)
	sw.Policy.MaxAttempts = cfg.ConnectAttempts
	handle, err := sw.Switch(ctx, plan.Device.DeviceIP)
	if err != nil {
		return m.setupFailed(ctx, err)
	}

	sess := session.New(sw, m.Logger, m.Metrics)
	sess.ShutdownTimeout = cfg.ShutdownTimeout
	sess.Attach(handle)
	plan.SessionID = sess.ID
	log := sess.Logger()

	env := pipeline.Env{
		Config:   cfg,
		Host:     plan.Host,
		DeviceIP: plan.Device.DeviceIP,
		Remote:   m.ADB.Wireless(handle.Addr),
		Spawner:  m.Spawner,
		Logger:   log,
		Metrics:  m.Metrics,
	}
	if err := pipeline.StartRelay(ctx, m.Shape, sess, env); err != nil {
		m.teardown(ctx, sess)
		return m.setupFailed(ctx, err)
	}

	if m.OnReady != nil {
		m.OnReady(plan)
	}

	reason, waitErr := sess.Wait(ctx)
	if waitErr != nil {
		log.Warn("%s: %v", reason, waitErr)
	} else {
		log.Info("session ended: %s", reason)
	}
	m.teardown(ctx, sess)
	log.Debug("metrics: %s", m.Metrics.JSON())
	return waitErr
}

// teardown shuts the session down on a context that survives the
// cancellation that usually triggers it.
func (m *MirrorMode) teardown(ctx context.Context, sess *session.RelaySession) {
	err := sess.Shutdown(context.WithoutCancel(ctx))
	if err != nil && !errors.Is(err, mimicerr.ErrSessionClosed) {
		m.Logger.Warn("shutdown: %v", err)
	}
}

// setupFailed reports an interrupted startup as the interruption rather
// than whatever the cancelled step happened to return.
func (m *MirrorMode) setupFailed(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		m.Logger.Verbose("startup interrupted: %v", err)
		return ctxErr
	}
	m.Metrics.RecordError(err.Error())
	return err
}
