package testsupport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"capturepair/internal/backend"
)

// Backend operation names recorded by FakeBackend.
const (
	OpCheckDriverStatus   = "CheckDriverStatus"
	OpInstallDrivers      = "InstallDrivers"
	OpListDevices         = "ListDevices"
	OpIsDeviceInDevMode   = "IsDeviceInDevMode"
	OpRevealDevMode       = "RevealDevMode"
	OpSetupDevice         = "SetupDevice"
	OpGeneratePairingFile = "GeneratePairingFile"
)

// Call is one recorded backend invocation.
type Call struct {
	Op       string
	DeviceID string
}

// FakeBackend is a scripted backend.Backend that records every call. Fields
// may be set before use or through the setters while tests run.
type FakeBackend struct {
	mu sync.Mutex

	driverStatus backend.DriverStatus
	driverErr    error
	installErr   error
	installGate  chan struct{}

	devices []backend.Device
	listErr error

	devMode    map[string]bool
	devModeErr map[string]error
	revealErr  error

	setupErr   error
	setupGate  chan struct{}
	pairingErr error

	calls []Call
}

// NewFakeBackend returns a backend reporting installed drivers and no devices.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		driverStatus: backend.DriverInstalled,
		devMode:      map[string]bool{},
		devModeErr:   map[string]error{},
	}
}

// SetDriverStatus scripts CheckDriverStatus.
func (f *FakeBackend) SetDriverStatus(status backend.DriverStatus, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.driverStatus = status
	f.driverErr = err
}

// SetInstallResult scripts InstallDrivers. A non-nil gate blocks the install
// until it is closed.
func (f *FakeBackend) SetInstallResult(err error, gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.installErr = err
	f.installGate = gate
}

// SetDevices scripts ListDevices.
func (f *FakeBackend) SetDevices(devices []backend.Device, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = slices.Clone(devices)
	f.listErr = err
}

// SetDevMode scripts IsDeviceInDevMode for one device.
func (f *FakeBackend) SetDevMode(deviceID string, enabled bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devMode[deviceID] = enabled
	if err != nil {
		f.devModeErr[deviceID] = err
	} else {
		delete(f.devModeErr, deviceID)
	}
}

// SetRevealError scripts RevealDevMode.
func (f *FakeBackend) SetRevealError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revealErr = err
}

// SetSetupResult scripts SetupDevice. A non-nil gate blocks setup until it is
// closed.
func (f *FakeBackend) SetSetupResult(err error, gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setupErr = err
	f.setupGate = gate
}

// SetPairingError scripts GeneratePairingFile.
func (f *FakeBackend) SetPairingError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairingErr = err
}

// Calls returns a copy of the recorded calls in order.
func (f *FakeBackend) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// CallCount reports how many times op was invoked.
func (f *FakeBackend) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.calls {
		if call.Op == op {
			count++
		}
	}
	return count
}

// ResetCalls clears the call log.
func (f *FakeBackend) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FakeBackend) record(op, deviceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: op, DeviceID: deviceID})
}

func (f *FakeBackend) CheckDriverStatus(context.Context) (backend.DriverStatus, error) {
	f.record(OpCheckDriverStatus, "")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.driverStatus, f.driverErr
}

func (f *FakeBackend) InstallDrivers(ctx context.Context) error {
	f.record(OpInstallDrivers, "")
	f.mu.Lock()
	gate, err := f.installGate, f.installErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err == nil {
		f.SetDriverStatus(backend.DriverInstalled, nil)
	}
	return err
}

func (f *FakeBackend) ListDevices(context.Context) ([]backend.Device, error) {
	f.record(OpListDevices, "")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return slices.Clone(f.devices), nil
}

func (f *FakeBackend) IsDeviceInDevMode(_ context.Context, deviceID string) (bool, error) {
	f.record(OpIsDeviceInDevMode, deviceID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.devModeErr[deviceID]; ok {
		return false, err
	}
	enabled, ok := f.devMode[deviceID]
	if !ok {
		return false, fmt.Errorf("%s: %w", deviceID, backend.ErrDeviceNotFound)
	}
	return enabled, nil
}

func (f *FakeBackend) RevealDevMode(_ context.Context, deviceID string) error {
	f.record(OpRevealDevMode, deviceID)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revealErr
}

func (f *FakeBackend) SetupDevice(ctx context.Context, deviceID string) error {
	f.record(OpSetupDevice, deviceID)
	f.mu.Lock()
	gate, err := f.setupGate, f.setupErr
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *FakeBackend) GeneratePairingFile(_ context.Context, deviceID, destination string) (int64, error) {
	f.record(OpGeneratePairingFile, deviceID)
	f.mu.Lock()
	err := f.pairingErr
	f.mu.Unlock()
	if err != nil {
		return 0, err
	}
	payload := []byte("<?xml version=\"1.0\"?><plist><dict><key>UDID</key><string>" + deviceID + "</string></dict></plist>\n")
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(destination, payload, 0o600); err != nil {
		return 0, err
	}
	return int64(len(payload)), nil
}

var _ backend.Backend = (*FakeBackend)(nil)
