package services

import (
	"errors"
	"fmt"
	"strings"
)

// Taxonomy markers. Every error leaving the pairing core or a backend wraps
// exactly one of these so callers can classify with errors.Is.
var (
	ErrDriverCheck        = errors.New("driver check failed")
	ErrDriverInstall      = errors.New("driver install failed")
	ErrDeviceEnumeration  = errors.New("device enumeration failed")
	ErrDeviceUnreachable  = errors.New("device communication error")
	ErrDevModeUnavailable = errors.New("developer mode unavailable")
	ErrSetup              = errors.New("device setup failed")

	ErrSessionInProgress = errors.New("session in progress")
	ErrInstallInProgress = errors.New("driver install in progress")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidDevice     = errors.New("invalid device")

	ErrConfiguration = errors.New("configuration error")
	ErrExternalTool  = errors.New("external tool error")
)

// InstallError carries the installer's failure message verbatim.
type InstallError struct {
	Message string
	Err     error
}

func (e *InstallError) Error() string {
	if e.Message == "" {
		return ErrDriverInstall.Error()
	}
	return ErrDriverInstall.Error() + ": " + e.Message
}

func (e *InstallError) Unwrap() error { return e.Err }

func (e *InstallError) Is(target error) bool { return target == ErrDriverInstall }

// SetupError carries the backend's setup rejection reason verbatim.
type SetupError struct {
	Reason string
	Err    error
}

func (e *SetupError) Error() string {
	if e.Reason == "" {
		return ErrSetup.Error()
	}
	return ErrSetup.Error() + ": " + e.Reason
}

func (e *SetupError) Unwrap() error { return e.Err }

func (e *SetupError) Is(target error) bool { return target == ErrSetup }

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind names the taxonomy entry an error belongs to, for session reports and
// API payloads. Unclassified errors report "Error".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDeviceUnreachable):
		return "DeviceCommunicationError"
	case errors.Is(err, ErrDriverCheck):
		return "DriverCheckError"
	case errors.Is(err, ErrDriverInstall):
		return "DriverInstallError"
	case errors.Is(err, ErrDeviceEnumeration):
		return "DeviceEnumerationError"
	case errors.Is(err, ErrDevModeUnavailable):
		return "DevModeUnavailable"
	case errors.Is(err, ErrSetup):
		return "SetupError"
	case errors.Is(err, ErrExternalTool):
		return "ExternalToolError"
	default:
		return "Error"
	}
}

// Reason extracts the user-facing failure text: the verbatim setup reason or
// install message when present, otherwise the full error string.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	var setupErr *SetupError
	if errors.As(err, &setupErr) && setupErr.Reason != "" {
		return setupErr.Reason
	}
	var installErr *InstallError
	if errors.As(err, &installErr) && installErr.Message != "" {
		return installErr.Message
	}
	return err.Error()
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
