package api

import (
	"context"
	"errors"
	"strings"

	"capturepair/internal/config"
	"capturepair/internal/history"
	"capturepair/internal/pairing"
	"capturepair/internal/preflight"
	"capturepair/internal/services"
)

// Service is the set of operations a presentation layer may invoke.
type Service interface {
	Status(ctx context.Context) (DaemonStatus, error)
	DriverState(ctx context.Context) (DriverState, error)
	CheckDrivers(ctx context.Context) (DriverState, error)
	InstallDrivers(ctx context.Context) (DriverState, error)
	Devices(ctx context.Context) (DeviceList, error)
	RefreshDevices(ctx context.Context) (DeviceList, error)
	BeginSession(ctx context.Context, device string) (Session, error)
	CurrentSession(ctx context.Context) (*Session, error)
	History(ctx context.Context, query HistoryQuery) ([]Session, error)
	ExportPairingFile(ctx context.Context, device, destination string) (Session, error)
}

// HistoryReader abstracts session history queries.
type HistoryReader interface {
	List(ctx context.Context, opts history.ListOptions) ([]pairing.Session, error)
	Stats(ctx context.Context) (map[pairing.SessionState]int, error)
}

// Deps are the components Local operates on. History and DriverChecker may
// be nil.
type Deps struct {
	Config        *config.Config
	Drivers       *pairing.DriverGate
	Registry      *pairing.Registry
	Controller    *pairing.Controller
	History       HistoryReader
	DriverChecker preflight.DriverChecker
}

// Local implements Service in-process.
type Local struct {
	deps Deps
}

var _ Service = (*Local)(nil)

// NewLocal constructs a Local service around deps.
func NewLocal(deps Deps) *Local {
	return &Local{deps: deps}
}

// Status reports driver, session, and device state plus preflight results.
// Running and PID are left for the daemon to fill in.
func (l *Local) Status(ctx context.Context) (DaemonStatus, error) {
	status := DaemonStatus{
		Drivers:     FromDriverState(l.deps.Drivers.State()),
		DeviceCount: len(l.deps.Registry.Snapshot().Devices),
	}
	if cfg := l.deps.Config; cfg != nil {
		if cfg.History.Enabled {
			status.HistoryPath = cfg.HistoryPath()
		}
		status.LockFilePath = cfg.LockPath()
		status.Checks = FromChecks(preflight.RunAll(ctx, cfg, l.deps.DriverChecker))
	}
	if l.deps.History != nil {
		if counts, err := l.deps.History.Stats(ctx); err == nil && len(counts) > 0 {
			status.SessionCounts = make(map[string]int, len(counts))
			for state, n := range counts {
				status.SessionCounts[string(state)] = n
			}
		}
	}
	if current, ok := l.deps.Controller.Current(); ok {
		dto := FromSession(current)
		status.Session = &dto
	}
	if last, ok := l.deps.Controller.Last(); ok {
		dto := FromSession(last)
		status.LastSession = &dto
	}
	return status, nil
}

// DriverState returns the driver gate state without probing.
func (l *Local) DriverState(context.Context) (DriverState, error) {
	return FromDriverState(l.deps.Drivers.State()), nil
}

// CheckDrivers re-probes the host drivers.
func (l *Local) CheckDrivers(ctx context.Context) (DriverState, error) {
	state, err := l.deps.Drivers.Check(ctx)
	if err != nil {
		return FromDriverState(state), err
	}
	return FromDriverState(state), nil
}

// InstallDrivers runs the installer. A failed install is an outcome reported
// in the returned state, not an error. Drivers never checked are checked first.
func (l *Local) InstallDrivers(ctx context.Context) (DriverState, error) {
	if l.deps.Drivers.State().Phase == pairing.DriverUnknown {
		if _, err := l.deps.Drivers.Check(ctx); err != nil {
			return FromDriverState(l.deps.Drivers.State()), err
		}
	}
	if err := l.deps.Drivers.Install(ctx); err != nil && !errors.Is(err, services.ErrDriverInstall) {
		return FromDriverState(l.deps.Drivers.State()), err
	}
	return FromDriverState(l.deps.Drivers.State()), nil
}

// Devices returns the current snapshot without enumerating.
func (l *Local) Devices(context.Context) (DeviceList, error) {
	return FromSnapshot(l.deps.Registry.Snapshot(), l.deps.Registry.Choices()), nil
}

// RefreshDevices enumerates attached devices. On failure the previous
// snapshot is returned alongside the error.
func (l *Local) RefreshDevices(ctx context.Context) (DeviceList, error) {
	snap, err := l.deps.Registry.Refresh(ctx)
	return FromSnapshot(snap, l.deps.Registry.Choices()), err
}

// BeginSession resolves device and runs a setup session to its terminal state.
func (l *Local) BeginSession(ctx context.Context, device string) (Session, error) {
	resolved, err := l.resolve(ctx, device)
	if err != nil {
		return Session{}, err
	}
	session, err := l.deps.Controller.Begin(ctx, resolved)
	if err != nil {
		return Session{}, err
	}
	return FromSession(session), nil
}

// CurrentSession returns the in-flight session or nil.
func (l *Local) CurrentSession(context.Context) (*Session, error) {
	current, ok := l.deps.Controller.Current()
	if !ok {
		return nil, nil
	}
	dto := FromSession(current)
	return &dto, nil
}

// History lists finished sessions, newest first. Without a history store only
// the last session of this process is known.
func (l *Local) History(ctx context.Context, query HistoryQuery) ([]Session, error) {
	if l.deps.History == nil {
		last, ok := l.deps.Controller.Last()
		if !ok || (query.DeviceID != "" && last.DeviceID != query.DeviceID) {
			return []Session{}, nil
		}
		return []Session{FromSession(last)}, nil
	}
	sessions, err := l.deps.History.List(ctx, history.ListOptions{
		DeviceID: strings.TrimSpace(query.DeviceID),
		Limit:    query.Limit,
	})
	if err != nil {
		return nil, err
	}
	return FromSessions(sessions), nil
}

// ExportPairingFile resolves device and writes its pairing file.
func (l *Local) ExportPairingFile(ctx context.Context, device, destination string) (Session, error) {
	resolved, err := l.resolve(ctx, device)
	if err != nil {
		return Session{}, err
	}
	session, err := l.deps.Controller.ExportPairingFile(ctx, resolved, destination)
	if err != nil {
		return Session{}, err
	}
	return FromSession(session), nil
}

// resolve maps a device reference to an id, refreshing the registry once
// when the reference is not in the current snapshot. A reference that stays
// unresolved is handed to the controller as is, so a missing driver parks the
// session and a vanished device fails it. Empty and ambiguous references are
// rejected.
func (l *Local) resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", services.Wrap(services.ErrInvalidDevice, "api", "resolve device", "device required", nil)
	}
	device, err := l.deps.Registry.Resolve(ref)
	if err == nil {
		return device.ID, nil
	}
	if errors.Is(err, pairing.ErrAmbiguousDevice) || !errors.Is(err, services.ErrInvalidDevice) {
		return "", err
	}
	if !l.deps.Drivers.State().Installed() {
		return ref, nil
	}
	if _, refreshErr := l.deps.Registry.Refresh(ctx); refreshErr != nil {
		return ref, nil
	}
	device, err = l.deps.Registry.Resolve(ref)
	if errors.Is(err, pairing.ErrAmbiguousDevice) {
		return "", err
	}
	if err != nil {
		return ref, nil
	}
	return device.ID, nil
}
