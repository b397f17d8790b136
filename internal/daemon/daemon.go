package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"capturepair/internal/api"
	"capturepair/internal/app"
	"capturepair/internal/config"
	"capturepair/internal/logging"
	"capturepair/internal/notifications"
)

// Daemon serves the pairing runtime and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	runtime *app.Runtime

	lockPath string
	lock     *flock.Flock

	api     *apiServer
	hotplug *netlinkMonitor

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon around an assembled runtime.
func New(cfg *config.Config, rt *app.Runtime, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || rt == nil {
		return nil, errors.New("daemon requires config and runtime")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		runtime:  rt,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	srv, err := newAPIServer(cfg, daemonService{Local: rt.API, daemon: d}, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	d.hotplug = newNetlinkMonitor(cfg, logger, d.devicesChanged)
	return d, nil
}

// Start acquires the daemon lock, runs the initial driver check and device
// enumeration, and starts the API server and hotplug monitor.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another capturepair daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.runtime.Start(runCtx)

	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}
	if err := d.hotplug.Start(runCtx); err != nil {
		d.logger.Warn("hotplug monitor unavailable", logging.Error(err))
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("capturepair daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop stops the API server and hotplug monitor and releases the lock.
// In-flight sessions and installs are left to settle in Close.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.hotplug.Stop()
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("capturepair daemon stopped")
}

// Close stops the daemon and waits for the runtime to settle.
func (d *Daemon) Close() error {
	d.Stop()
	return d.runtime.Close()
}

// Running reports whether the daemon holds the lock and serves requests.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddress returns the bound API address, or "" when the API is disabled.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the runtime status with process details filled in.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	status, err := d.runtime.API.Status(ctx)
	if err != nil {
		return status, err
	}
	status.Running = d.running.Load()
	status.PID = os.Getpid()
	status.LockFilePath = d.lockPath
	return status, nil
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.runtime.Notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

func (d *Daemon) devicesChanged(reason string) {
	d.runtime.Registry.MarkStale(reason)
}

// daemonService overrides Status so API callers see process details.
type daemonService struct {
	*api.Local
	daemon *Daemon
}

func (s daemonService) Status(ctx context.Context) (api.DaemonStatus, error) {
	return s.daemon.Status(ctx)
}
