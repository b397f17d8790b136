package backend

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"capturepair/internal/services"
)

const (
	systemdBusName   = "org.freedesktop.systemd1"
	systemdPath      = dbus.ObjectPath("/org/freedesktop/systemd1")
	systemdManager   = "org.freedesktop.systemd1.Manager"
	systemdUnitIface = "org.freedesktop.systemd1.Unit"
)

// unitStateReader reports a systemd unit's LoadState ("loaded", "not-found", ...).
type unitStateReader interface {
	LoadState(ctx context.Context, unit string) (string, error)
}

// systemBus reads unit state from systemd over the system D-Bus.
type systemBus struct{}

func (systemBus) LoadState(ctx context.Context, unit string) (string, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return "", fmt.Errorf("connect to system bus: %w", err)
	}
	defer conn.Close()

	var unitPath dbus.ObjectPath
	manager := conn.Object(systemdBusName, systemdPath)
	if err := manager.CallWithContext(ctx, systemdManager+".LoadUnit", 0, unit).Store(&unitPath); err != nil {
		return "", fmt.Errorf("load unit %s: %w", unit, err)
	}
	v, err := conn.Object(systemdBusName, unitPath).GetProperty(systemdUnitIface + ".LoadState")
	if err != nil {
		return "", fmt.Errorf("read %s LoadState: %w", unit, err)
	}
	state, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("LoadState of %s is not a string", unit)
	}
	return state, nil
}

// systemdProbe treats the usbmuxd unit as the Linux "driver": present when
// systemd can load it.
type systemdProbe struct {
	unit      string
	bus       unitStateReader
	installer commandInstaller
}

func (p *systemdProbe) Status(ctx context.Context) (DriverStatus, error) {
	state, err := p.bus.LoadState(ctx, p.unit)
	if err != nil {
		return "", err
	}
	switch state {
	case "loaded":
		return DriverInstalled, nil
	case "not-found", "masked":
		return DriverMissing, nil
	default:
		return "", services.Wrap(services.ErrDriverCheck, "drivers", "systemd", fmt.Sprintf("unit %s has load state %q", p.unit, state), nil)
	}
}

func (p *systemdProbe) Install(ctx context.Context) error {
	return p.installer.Install(ctx)
}
