package pairing

import (
	"context"
	"errors"
	"log/slog"

	"capturepair/internal/logging"
	"capturepair/internal/services"
)

// DevModeBackend is the slice of the device backend the developer mode gate uses.
type DevModeBackend interface {
	IsDeviceInDevMode(ctx context.Context, deviceID string) (bool, error)
	RevealDevMode(ctx context.Context, deviceID string) error
}

// DevModeGate checks developer mode on a device and asks the device to show
// the setting when it is off. It never waits for the user to act.
type DevModeGate struct {
	backend DevModeBackend
	logger  *slog.Logger
}

// NewDevModeGate wraps the backend.
func NewDevModeGate(b DevModeBackend, logger *slog.Logger) *DevModeGate {
	return &DevModeGate{backend: b, logger: logging.NewComponentLogger(logger, "devmode")}
}

// IsEnabled reports the device's developer mode status. Failures other than
// an unsupported device are device communication errors.
func (g *DevModeGate) IsEnabled(ctx context.Context, deviceID string) (bool, error) {
	enabled, err := g.backend.IsDeviceInDevMode(ctx, deviceID)
	if err != nil {
		return false, communicationError("status", err)
	}
	return enabled, nil
}

// RequestReveal surfaces the developer mode toggle on the device and returns
// immediately.
func (g *DevModeGate) RequestReveal(ctx context.Context, deviceID string) error {
	if err := g.backend.RevealDevMode(ctx, deviceID); err != nil {
		return communicationError("reveal", err)
	}
	g.logger.Info("developer mode reveal requested",
		logging.String(logging.FieldDeviceID, deviceID),
		logging.String(logging.FieldEventType, "dev_mode_reveal_requested"),
		logging.String(logging.FieldErrorHint, "enable Developer Mode in Settings > Privacy & Security, restart the device, then run setup again"),
	)
	return nil
}

func communicationError(operation string, err error) error {
	if errors.Is(err, services.ErrDeviceUnreachable) || errors.Is(err, services.ErrDevModeUnavailable) ||
		errors.Is(err, services.ErrExternalTool) {
		return err
	}
	return services.Wrap(services.ErrDeviceUnreachable, "devmode", operation, "", err)
}
