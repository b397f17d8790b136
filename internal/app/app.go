// Package app assembles the pairing core from configuration: the device
// backend, the driver and developer mode gates, the device registry, the
// session controller, history, and notifications. The daemon and the CLI both
// build their runtime here so they behave the same.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"capturepair/internal/api"
	"capturepair/internal/backend"
	"capturepair/internal/config"
	"capturepair/internal/history"
	"capturepair/internal/logging"
	"capturepair/internal/notifications"
	"capturepair/internal/pairing"
	"capturepair/internal/services"
)

// Option customizes Build.
type Option func(*options)

type options struct {
	backend  backend.Backend
	notifier notifications.Service
	observer func(pairing.Transition)
}

// WithBackend replaces the configured backend (primarily for tests).
func WithBackend(b backend.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithNotificationService replaces the ntfy service built from config.
func WithNotificationService(svc notifications.Service) Option {
	return func(o *options) {
		o.notifier = svc
	}
}

// WithObserver receives every session state change.
func WithObserver(fn func(pairing.Transition)) Option {
	return func(o *options) {
		o.observer = fn
	}
}

// Runtime is the assembled pairing core.
type Runtime struct {
	Config     *config.Config
	Logger     *slog.Logger
	Backend    backend.Backend
	Drivers    *pairing.DriverGate
	Registry   *pairing.Registry
	DevMode    *pairing.DevModeGate
	Controller *pairing.Controller
	History    *history.Store
	Notifier   notifications.Service
	API        *api.Local
}

// Build wires a Runtime. History is opened only when enabled.
func Build(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	b := o.backend
	if b == nil {
		var err error
		b, err = newBackend(cfg, logger)
		if err != nil {
			return nil, err
		}
	}
	notifier := o.notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Backend:  b,
		Notifier: notifier,
	}

	if cfg.History.Enabled {
		store, err := history.Open(cfg)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		rt.History = store
	}

	rt.Drivers = pairing.NewDriverGate(b,
		pairing.WithDriverLogger(logger),
		pairing.WithInstallListener(notifications.DriverListener(notifier, logger)),
	)
	rt.Registry = pairing.NewRegistry(b, logger)
	rt.DevMode = pairing.NewDevModeGate(b, logger)

	controllerOpts := []pairing.Option{
		pairing.WithLogger(logger),
		pairing.WithRegistry(rt.Registry),
		pairing.WithNotifier(notifications.SessionNotifier{Service: notifier}),
		pairing.WithPairingFileDefault(cfg.DefaultPairingFile),
	}
	if rt.History != nil {
		controllerOpts = append(controllerOpts, pairing.WithRecorder(rt.History))
	}
	if o.observer != nil {
		controllerOpts = append(controllerOpts, pairing.WithObserver(o.observer))
	}
	rt.Controller = pairing.NewController(rt.Drivers, rt.DevMode, b, controllerOpts...)

	deps := api.Deps{
		Config:        cfg,
		Drivers:       rt.Drivers,
		Registry:      rt.Registry,
		Controller:    rt.Controller,
		DriverChecker: b,
	}
	if rt.History != nil {
		deps.History = rt.History
	}
	rt.API = api.NewLocal(deps)
	return rt, nil
}

// Start runs the initial driver check and device enumeration. Failures are
// logged and leave the prior state in place; nothing here is fatal.
func (r *Runtime) Start(ctx context.Context) {
	logger := logging.NewComponentLogger(r.Logger, "runtime")
	if state, err := r.Drivers.Check(ctx); err != nil {
		logging.WarnWithContext(logger, "initial driver check failed", "driver_check_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run 'capturepair drivers status' to retry"),
			logging.String(logging.FieldImpact, "sessions wait for drivers until a check succeeds"),
		)
	} else {
		logger.Debug("initial driver check",
			logging.String(logging.FieldDriverState, string(state.Phase)),
		)
	}
	if !r.Drivers.State().Installed() {
		return
	}
	if snap, err := r.Registry.Refresh(ctx); err != nil {
		logging.WarnWithContext(logger, "initial device enumeration failed", "device_enumeration_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "connect and unlock the device, then refresh"),
		)
	} else {
		logger.Debug("initial device enumeration", logging.Int("devices", len(snap.Devices)))
	}
}

// Close waits for detached work to settle and releases the history store.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	r.Controller.Wait()
	r.Drivers.Wait()
	if r.History != nil {
		return r.History.Close()
	}
	return nil
}

func newBackend(cfg *config.Config, logger *slog.Logger) (backend.Backend, error) {
	switch kind := strings.ToLower(strings.TrimSpace(cfg.Backend.Kind)); kind {
	case "", "exec":
		b, err := backend.NewExecBackend(cfg, backend.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "app", "build backend",
			fmt.Sprintf("unknown backend kind %q", kind), nil)
	}
}
