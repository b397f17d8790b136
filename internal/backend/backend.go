package backend

import (
	"context"
	"fmt"

	"capturepair/internal/services"
)

// DriverStatus is the backend's answer to a driver presence query.
type DriverStatus string

const (
	DriverInstalled     DriverStatus = "installed"
	DriverMissing       DriverStatus = "missing"
	DriverNotApplicable DriverStatus = "not_applicable"
)

// Device is one attached device as reported by the backend. Names are not
// unique; two handsets can both be called "iPhone".
type Device struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Backend is the device-communication collaborator. Every call may fail; a
// failure caused by the device disappearing wraps ErrDeviceNotFound.
type Backend interface {
	CheckDriverStatus(ctx context.Context) (DriverStatus, error)
	InstallDrivers(ctx context.Context) error
	ListDevices(ctx context.Context) ([]Device, error)
	IsDeviceInDevMode(ctx context.Context, deviceID string) (bool, error)
	RevealDevMode(ctx context.Context, deviceID string) error
	SetupDevice(ctx context.Context, deviceID string) error
	GeneratePairingFile(ctx context.Context, deviceID, destination string) (int64, error)
}

var (
	// ErrDeviceNotFound reports that the device was unplugged, locked out, or
	// otherwise unreachable mid-operation.
	ErrDeviceNotFound = fmt.Errorf("%w: device not found", services.ErrDeviceUnreachable)
	// ErrDevModeUnsupported reports a device that does not expose developer mode status.
	ErrDevModeUnsupported = fmt.Errorf("%w: device does not report developer mode status", services.ErrDevModeUnavailable)
)
