package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"capturepair/internal/config"
	"capturepair/internal/fileutil"
	"capturepair/internal/logging"
	"capturepair/internal/services"
)

const (
	amfiDomain        = "com.apple.security.mac.amfi"
	devModeStatusKey  = "DeveloperModeStatus"
	deviceNameKey     = "DeviceName"
	remotePairingPath = "/Documents/pairing_record.plist"
)

// deviceGoneMarkers are lowercase fragments libimobiledevice tools print when
// the target device is not reachable.
var deviceGoneMarkers = []string{
	"no device found",
	"device not found",
	"could not connect to lockdownd",
	"unable to connect to device",
	"invalid device",
}

// Tools names the libimobiledevice executables the exec backend runs.
type Tools struct {
	IDeviceID   string
	IDeviceInfo string
	IDevicePair string
	DevModeCtl  string
	AFCClient   string
}

// ExecOption configures the exec backend.
type ExecOption func(*ExecBackend)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(ex Executor) ExecOption {
	return func(b *ExecBackend) {
		if ex != nil {
			b.exec = ex
		}
	}
}

// WithDriverProbe overrides the platform driver probe.
func WithDriverProbe(probe DriverProbe) ExecOption {
	return func(b *ExecBackend) {
		if probe != nil {
			b.drivers = probe
		}
	}
}

// WithLogger sets the backend logger.
func WithLogger(logger *slog.Logger) ExecOption {
	return func(b *ExecBackend) {
		b.logger = logging.NewComponentLogger(logger, "backend")
	}
}

// ExecBackend implements Backend by running libimobiledevice tools.
type ExecBackend struct {
	tools       Tools
	lockdownDir string
	bundleID    string
	timeout     time.Duration
	exec        Executor
	drivers     DriverProbe
	logger      *slog.Logger
}

// NewExecBackend builds a backend from configuration.
func NewExecBackend(cfg *config.Config, opts ...ExecOption) (*ExecBackend, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	b := &ExecBackend{
		tools: Tools{
			IDeviceID:   cfg.Backend.IDeviceID,
			IDeviceInfo: cfg.Backend.IDeviceInfo,
			IDevicePair: cfg.Backend.IDevicePair,
			DevModeCtl:  cfg.Backend.DevModeCtl,
			AFCClient:   cfg.Backend.AFCClient,
		},
		lockdownDir: cfg.Backend.LockdownDir,
		bundleID:    cfg.Backend.BundleID,
		timeout:     cfg.CommandTimeout(),
		exec:        commandExecutor{},
		logger:      logging.NewComponentLogger(nil, "backend"),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.drivers == nil {
		b.drivers = NewDriverProbe(cfg, b.exec, b.logger)
	}
	return b, nil
}

// CheckDriverStatus delegates to the platform driver probe.
func (b *ExecBackend) CheckDriverStatus(ctx context.Context) (DriverStatus, error) {
	return b.drivers.Status(ctx)
}

// InstallDrivers delegates to the platform driver probe.
func (b *ExecBackend) InstallDrivers(ctx context.Context) error {
	return b.drivers.Install(ctx)
}

// ListDevices returns USB-attached devices with their display names. Devices
// whose name cannot be read are skipped with a warning.
func (b *ExecBackend) ListDevices(ctx context.Context) ([]Device, error) {
	lines, err := b.run(ctx, b.tools.IDeviceID, "-l")
	if err != nil {
		return nil, b.toolError("list devices", lines, err)
	}

	seen := make(map[string]struct{}, len(lines))
	devices := make([]Device, 0, len(lines))
	for _, line := range lines {
		udid := strings.Fields(line)[0]
		if !looksLikeUDID(udid) {
			continue
		}
		if _, ok := seen[udid]; ok {
			continue
		}
		seen[udid] = struct{}{}

		name, err := b.deviceName(ctx, udid)
		if err != nil {
			logging.WarnWithContext(b.logger, "device name unavailable; skipping device", "device_name_unavailable",
				logging.String(logging.FieldDeviceID, udid),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "unlock the device and accept the trust prompt"),
				logging.String(logging.FieldImpact, "device omitted from list"),
			)
			continue
		}
		devices = append(devices, Device{ID: udid, Name: name})
	}
	return devices, nil
}

func (b *ExecBackend) deviceName(ctx context.Context, udid string) (string, error) {
	lines, err := b.run(ctx, b.tools.IDeviceInfo, "-u", udid, "-k", deviceNameKey)
	if err != nil {
		return "", b.toolError("read device name", lines, err)
	}
	if len(lines) == 0 {
		return "", fmt.Errorf("%s not reported", deviceNameKey)
	}
	return lines[0], nil
}

// IsDeviceInDevMode reads the AMFI developer mode status from lockdown.
func (b *ExecBackend) IsDeviceInDevMode(ctx context.Context, deviceID string) (bool, error) {
	lines, err := b.run(ctx, b.tools.IDeviceInfo, "-u", deviceID, "-q", amfiDomain, "-k", devModeStatusKey)
	if err != nil {
		return false, b.toolError("query developer mode", lines, err)
	}
	if len(lines) == 0 {
		return false, ErrDevModeUnsupported
	}
	switch strings.ToLower(lines[0]) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		if isDeviceGone(lines) {
			return false, b.toolError("query developer mode", lines, nil)
		}
		return false, fmt.Errorf("%w: unexpected %s value %q", services.ErrDevModeUnavailable, devModeStatusKey, lines[0])
	}
}

// RevealDevMode makes the Developer Mode toggle visible in the device's
// Settings. It does not wait for the user.
func (b *ExecBackend) RevealDevMode(ctx context.Context, deviceID string) error {
	lines, err := b.run(ctx, b.tools.DevModeCtl, "reveal", "-u", deviceID)
	if err != nil {
		return b.toolError("reveal developer mode", lines, err)
	}
	if isDeviceGone(lines) {
		return b.toolError("reveal developer mode", lines, nil)
	}
	return nil
}

// SetupDevice produces the host pairing record and uploads it into the
// companion app's Documents container.
func (b *ExecBackend) SetupDevice(ctx context.Context, deviceID string) error {
	record, err := b.pairingRecord(ctx, deviceID)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "capturepair-record-*.plist")
	if err != nil {
		return fmt.Errorf("stage pairing record: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(record); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("stage pairing record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("stage pairing record: %w", err)
	}

	lines, err := b.run(ctx, b.tools.AFCClient, "--documents", b.bundleID, "-u", deviceID, "put", tmpName, remotePairingPath)
	if err != nil || hasToolError(lines) {
		if isDeviceGone(lines) {
			return b.toolError("upload pairing record", lines, err)
		}
		return &services.SetupError{Reason: uploadFailureReason(lines, b.bundleID), Err: err}
	}
	b.logger.Info("pairing record uploaded",
		logging.String(logging.FieldDeviceID, deviceID),
		logging.String("bundle_id", b.bundleID),
		logging.String(logging.FieldEventType, "pairing_record_uploaded"),
	)
	return nil
}

// GeneratePairingFile writes the device's pairing record to destination.
func (b *ExecBackend) GeneratePairingFile(ctx context.Context, deviceID, destination string) (int64, error) {
	if strings.TrimSpace(destination) == "" {
		return 0, errors.New("destination path required")
	}
	record, err := b.pairingRecord(ctx, deviceID)
	if err != nil {
		return 0, err
	}
	if _, err := fileutil.WriteFileAtomic(destination, record, 0o600); err != nil {
		return 0, fmt.Errorf("write pairing file: %w", err)
	}
	return int64(len(record)), nil
}

func (b *ExecBackend) run(ctx context.Context, binary string, args ...string) ([]string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return runCapture(ctx, b.exec, binary, args...)
}

// toolError classifies a failed tool invocation: device-gone output becomes
// ErrDeviceNotFound, anything else ErrExternalTool with the last output line.
func (b *ExecBackend) toolError(operation string, lines []string, err error) error {
	detail := lastLine(lines)
	if isDeviceGone(lines) {
		if err == nil {
			return fmt.Errorf("%s: %w: %s", operation, ErrDeviceNotFound, detail)
		}
		return fmt.Errorf("%s: %w: %s: %w", operation, ErrDeviceNotFound, detail, err)
	}
	return services.Wrap(services.ErrExternalTool, "backend", operation, detail, err)
}

func isDeviceGone(lines []string) bool {
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, marker := range deviceGoneMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

// looksLikeUDID accepts both 40-hex legacy and 8-16 hex dashed identifiers.
func looksLikeUDID(value string) bool {
	if len(value) < 20 {
		return false
	}
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F', r == '-':
		default:
			return false
		}
	}
	return true
}

func hasToolError(lines []string) bool {
	for _, line := range lines {
		if strings.HasPrefix(strings.ToUpper(line), "ERROR") {
			return true
		}
	}
	return false
}

func uploadFailureReason(lines []string, bundleID string) string {
	for _, line := range lines {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "installationlookupfailed") || strings.Contains(lower, "not installed") {
			return fmt.Sprintf("companion app %s is not installed on the device", bundleID)
		}
	}
	if detail := lastLine(lines); detail != "" {
		return detail
	}
	return "pairing record upload failed"
}

func lastLine(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}

var _ Backend = (*ExecBackend)(nil)
