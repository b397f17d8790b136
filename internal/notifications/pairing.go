package notifications

import (
	"context"
	"log/slog"

	"capturepair/internal/logging"
	"capturepair/internal/pairing"
)

// SessionNotifier adapts a Service to the controller's Notifier.
type SessionNotifier struct {
	Service Service
}

// SessionFinished publishes the event matching the session outcome.
func (n SessionNotifier) SessionFinished(ctx context.Context, s pairing.Session) error {
	if n.Service == nil {
		return nil
	}
	data := Payload{
		"deviceID":   s.DeviceID,
		"deviceName": s.DeviceName,
	}
	var event Event
	switch s.State {
	case pairing.StateComplete:
		event = EventSetupComplete
		if s.Operation == pairing.OperationPairingFile {
			event = EventPairingFileExported
			data["file"] = s.PairingFile
		}
	case pairing.StateAwaitingDevModeEnable:
		event = EventAwaitingDevMode
	case pairing.StateAwaitingDriverInstall:
		event = EventAwaitingDrivers
	case pairing.StateFailed:
		event = EventSessionFailed
		data["error"] = s.ErrorMessage
		data["kind"] = s.ErrorKind
	default:
		return nil
	}
	return n.Service.Publish(ctx, event, data)
}

// DriverListener returns a driver gate install listener that publishes the
// settled state. Publish failures are logged.
func DriverListener(svc Service, logger *slog.Logger) func(pairing.DriverState) {
	logger = logging.NewComponentLogger(logger, "notifications")
	return func(state pairing.DriverState) {
		if svc == nil {
			return
		}
		event := EventDriversInstalled
		data := Payload{}
		if state.Phase == pairing.DriverFailed {
			event = EventDriverInstallFailed
			data["error"] = state.Message
		}
		if err := svc.Publish(context.Background(), event, data); err != nil {
			logging.WarnWithContext(logger, "driver notification failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "user was not notified of the driver install result"),
			)
		}
	}
}

var _ pairing.Notifier = SessionNotifier{}
