package backend

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"capturepair/internal/config"
	"capturepair/internal/logging"
	"capturepair/internal/services"
)

//go:embed install-apple-drivers.ps1
var windowsInstallerScript string

// appleDriverMarkers are lowercase fragments of `pnputil /enum-drivers` output
// that identify the Apple mobile device USB drivers.
var appleDriverMarkers = []string{
	"netaapl64",
	"usbaapl64",
	"apple mobile device",
	"apple usb",
}

// DriverProbe checks for and installs the host-side USB drivers.
type DriverProbe interface {
	Status(ctx context.Context) (DriverStatus, error)
	Install(ctx context.Context) error
}

// NewDriverProbe picks the probe for the running platform.
func NewDriverProbe(cfg *config.Config, ex Executor, logger *slog.Logger) DriverProbe {
	return newDriverProbe(runtime.GOOS, cfg, ex, logger)
}

func newDriverProbe(goos string, cfg *config.Config, ex Executor, logger *slog.Logger) DriverProbe {
	logger = logging.NewComponentLogger(logger, "drivers")
	switch goos {
	case "linux":
		return &systemdProbe{
			unit:      cfg.Drivers.SystemdUnit,
			bus:       systemBus{},
			installer: commandInstaller{exec: ex, command: cfg.Drivers.InstallCommand, logger: logger},
		}
	case "windows":
		return &pnputilProbe{
			exec: ex,
			installer: powershellInstaller{
				exec:       ex,
				scriptPath: filepath.Join(cfg.Paths.StateDir, cfg.Drivers.InstallerScript),
				logger:     logger,
			},
		}
	default:
		return notApplicableProbe{}
	}
}

// notApplicableProbe covers platforms with built-in device support.
type notApplicableProbe struct{}

func (notApplicableProbe) Status(context.Context) (DriverStatus, error) {
	return DriverNotApplicable, nil
}

func (notApplicableProbe) Install(context.Context) error {
	return &services.InstallError{Message: "drivers are not required on this platform"}
}

type pnputilProbe struct {
	exec      Executor
	installer powershellInstaller
}

func (p *pnputilProbe) Status(ctx context.Context) (DriverStatus, error) {
	lines, err := runCapture(ctx, p.exec, "pnputil", "/enum-drivers")
	if err != nil {
		return "", fmt.Errorf("run pnputil: %w", err)
	}
	return parsePnputilDrivers(lines), nil
}

func (p *pnputilProbe) Install(ctx context.Context) error {
	return p.installer.Install(ctx)
}

func parsePnputilDrivers(lines []string) DriverStatus {
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, marker := range appleDriverMarkers {
			if strings.Contains(lower, marker) {
				return DriverInstalled
			}
		}
	}
	return DriverMissing
}

// commandInstaller runs a configured privileged command such as
// `pkexec apt-get install -y usbmuxd`.
type commandInstaller struct {
	exec    Executor
	command []string
	logger  *slog.Logger
}

func (c commandInstaller) Install(ctx context.Context) error {
	if len(c.command) == 0 {
		return &services.InstallError{Message: "no driver install command configured (drivers.install_command)"}
	}
	c.logger.Info("running driver installer",
		logging.String("command", strings.Join(c.command, " ")),
		logging.String(logging.FieldEventType, "driver_install_started"),
	)
	lines, err := runCapture(ctx, c.exec, c.command[0], c.command[1:]...)
	return installResult(lines, err)
}

// powershellInstaller writes the embedded installer script to disk and runs it
// in an elevated PowerShell, waiting for it to exit.
type powershellInstaller struct {
	exec       Executor
	scriptPath string
	logger     *slog.Logger
}

func (p powershellInstaller) Install(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(p.scriptPath), 0o755); err != nil {
		return &services.InstallError{Message: "failed to create installer directory", Err: err}
	}
	if err := os.WriteFile(p.scriptPath, []byte(windowsInstallerScript), 0o644); err != nil {
		return &services.InstallError{Message: "failed to write installer script", Err: err}
	}
	p.logger.Info("requesting elevation for driver installer",
		logging.String("script", p.scriptPath),
		logging.String(logging.FieldEventType, "driver_install_started"),
	)
	lines, err := runCapture(ctx, p.exec, "powershell", elevatedPowershellArgs(p.scriptPath)...)
	return installResult(lines, err)
}

func elevatedPowershellArgs(scriptPath string) []string {
	inner := fmt.Sprintf("'-NoProfile','-ExecutionPolicy','Bypass','-File','\"%s\"'", strings.ReplaceAll(scriptPath, "'", "''"))
	return []string{
		"-NoProfile",
		"-Command",
		"$p = Start-Process powershell -Verb RunAs -Wait -PassThru -ArgumentList " + inner + "; exit $p.ExitCode",
	}
}

func installResult(lines []string, err error) error {
	if err == nil {
		return nil
	}
	if code, ok := exitCode(err); ok {
		switch code {
		case 126:
			return &services.InstallError{Message: "elevation was refused", Err: err}
		default:
			return &services.InstallError{Message: fmt.Sprintf("installer exited with code %d", code), Err: err}
		}
	}
	if errors.Is(err, context.Canceled) {
		return &services.InstallError{Message: "installer interrupted", Err: err}
	}
	message := lastLine(lines)
	if message == "" {
		message = err.Error()
	}
	return &services.InstallError{Message: message, Err: err}
}
