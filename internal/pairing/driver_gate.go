package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"capturepair/internal/backend"
	"capturepair/internal/logging"
	"capturepair/internal/services"
)

// DriverBackend is the slice of the device backend the driver gate uses.
type DriverBackend interface {
	CheckDriverStatus(ctx context.Context) (backend.DriverStatus, error)
	InstallDrivers(ctx context.Context) error
}

// DriverGateOption configures a DriverGate.
type DriverGateOption func(*DriverGate)

// WithDriverLogger sets the gate logger.
func WithDriverLogger(logger *slog.Logger) DriverGateOption {
	return func(g *DriverGate) {
		g.logger = logging.NewComponentLogger(logger, "drivers")
	}
}

// WithInstallListener registers fn to receive the state an install settles in.
func WithInstallListener(fn func(DriverState)) DriverGateOption {
	return func(g *DriverGate) {
		if fn != nil {
			g.listeners = append(g.listeners, fn)
		}
	}
}

// DriverGate owns the process-wide driver state. All mutation goes through
// Check and Install.
type DriverGate struct {
	backend   DriverBackend
	logger    *slog.Logger
	listeners []func(DriverState)
	now       func() time.Time

	mu    sync.Mutex
	state DriverState
	wg    sync.WaitGroup
}

// NewDriverGate returns a gate in the unknown state.
func NewDriverGate(b DriverBackend, opts ...DriverGateOption) *DriverGate {
	g := &DriverGate{
		backend: b,
		logger:  logging.NewComponentLogger(nil, "drivers"),
		now:     time.Now,
		state:   DriverState{Phase: DriverUnknown},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the current driver state.
func (g *DriverGate) State() DriverState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Check queries the backend once. A failed query leaves the state untouched;
// it is not evidence that drivers are absent. While an install is running the
// backend is not queried.
func (g *DriverGate) Check(ctx context.Context) (DriverState, error) {
	if current := g.State(); current.Phase == DriverInstalling {
		return current, nil
	}

	status, err := g.backend.CheckDriverStatus(ctx)
	if err != nil {
		logging.WarnWithContext(g.logger, "driver check failed; keeping previous state", "driver_check_failed",
			logging.Error(err),
			logging.String(logging.FieldDriverState, string(g.State().Phase)),
			logging.String(logging.FieldErrorHint, "retry the driver check"),
		)
		return g.State(), services.Wrap(services.ErrDriverCheck, "drivers", "check", "", err)
	}

	next := DriverState{UpdatedAt: g.now()}
	switch status {
	case backend.DriverInstalled:
		next.Phase = DriverInstalled
	case backend.DriverNotApplicable:
		next.Phase = DriverInstalled
		next.NotRequired = true
	case backend.DriverMissing:
		next.Phase = DriverMissing
	default:
		return g.State(), services.Wrap(services.ErrDriverCheck, "drivers", "check",
			fmt.Sprintf("unexpected driver status %q", status), nil)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Phase == DriverInstalling {
		return g.state, nil
	}
	if g.state.Phase != next.Phase {
		g.logger.Info("driver state changed",
			logging.String(logging.FieldDriverState, string(next.Phase)),
			logging.String("previous_state", string(g.state.Phase)),
			logging.Bool("not_required", next.NotRequired),
			logging.String(logging.FieldEventType, "driver_state_changed"),
		)
	}
	g.state = next
	return g.state, nil
}

// Install runs the privileged driver installer. It is valid from missing, and
// from failed as an explicit retry. The state moves to installing before the
// backend is called; a concurrent Install is rejected. If ctx ends first,
// Install returns ctx.Err() while the installer keeps running and still
// settles the state.
func (g *DriverGate) Install(ctx context.Context) error {
	g.mu.Lock()
	switch g.state.Phase {
	case DriverMissing, DriverFailed:
	case DriverInstalling:
		g.mu.Unlock()
		return services.ErrInstallInProgress
	default:
		phase := g.state.Phase
		g.mu.Unlock()
		return fmt.Errorf("%w: drivers cannot be installed while %s", services.ErrInvalidState, phase)
	}
	g.state = DriverState{Phase: DriverInstalling, UpdatedAt: g.now()}
	g.wg.Add(1)
	g.mu.Unlock()

	g.logger.Info("driver install started",
		logging.String(logging.FieldDriverState, string(DriverInstalling)),
		logging.String(logging.FieldEventType, "driver_install_started"),
	)

	done := make(chan error, 1)
	go func() {
		defer g.wg.Done()
		done <- g.runInstall(context.WithoutCancel(ctx))
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *DriverGate) runInstall(ctx context.Context) error {
	err := g.backend.InstallDrivers(ctx)
	if err != nil && !errors.Is(err, services.ErrDriverInstall) {
		err = &services.InstallError{Message: err.Error(), Err: err}
	}

	g.mu.Lock()
	if err != nil {
		g.state = DriverState{Phase: DriverFailed, Message: services.Reason(err), UpdatedAt: g.now()}
	} else {
		g.state = DriverState{Phase: DriverInstalled, UpdatedAt: g.now()}
	}
	settled := g.state
	g.mu.Unlock()

	if err != nil {
		logging.ErrorWithContext(g.logger, "driver install failed", "driver_install_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the reported problem and retry the install"),
		)
	} else {
		g.logger.Info("driver install complete",
			logging.String(logging.FieldDriverState, string(DriverInstalled)),
			logging.String(logging.FieldEventType, "driver_install_completed"),
		)
	}
	for _, fn := range g.listeners {
		fn(settled)
	}
	return err
}

// Wait blocks until any detached install has settled.
func (g *DriverGate) Wait() {
	g.wg.Wait()
}
