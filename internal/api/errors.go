package api

import (
	"errors"
	"net/http"

	"capturepair/internal/services"
)

// Stable error codes carried in ErrorResponse.
const (
	CodeSessionInProgress = "session_in_progress"
	CodeInstallInProgress = "install_in_progress"
	CodeInvalidState      = "invalid_state"
	CodeInvalidDevice     = "invalid_device"
	CodeInvalidRequest    = "invalid_request"
	CodeDriverCheck       = "driver_check"
	CodeEnumeration       = "device_enumeration"
	CodeConfiguration     = "configuration"
	CodeUnauthorized      = "unauthorized"
	CodeInternal          = "internal"
)

var codeMarkers = map[string]error{
	CodeSessionInProgress: services.ErrSessionInProgress,
	CodeInstallInProgress: services.ErrInstallInProgress,
	CodeInvalidState:      services.ErrInvalidState,
	CodeInvalidDevice:     services.ErrInvalidDevice,
	CodeDriverCheck:       services.ErrDriverCheck,
	CodeEnumeration:       services.ErrDeviceEnumeration,
	CodeConfiguration:     services.ErrConfiguration,
}

// ErrorCode classifies err for transport.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, services.ErrSessionInProgress):
		return CodeSessionInProgress
	case errors.Is(err, services.ErrInstallInProgress):
		return CodeInstallInProgress
	case errors.Is(err, services.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, services.ErrInvalidDevice):
		return CodeInvalidDevice
	case errors.Is(err, services.ErrDriverCheck):
		return CodeDriverCheck
	case errors.Is(err, services.ErrDeviceEnumeration):
		return CodeEnumeration
	case errors.Is(err, services.ErrConfiguration):
		return CodeConfiguration
	default:
		return CodeInternal
	}
}

// HTTPStatus maps an error code to its response status.
func HTTPStatus(code string) int {
	switch code {
	case CodeSessionInProgress, CodeInstallInProgress, CodeInvalidState:
		return http.StatusConflict
	case CodeInvalidDevice:
		return http.StatusNotFound
	case CodeInvalidRequest, CodeConfiguration:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeDriverCheck, CodeEnumeration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RemoteError is an error reported by the daemon. It matches the taxonomy
// marker its code names.
type RemoteError struct {
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Status)
	}
	return e.Message
}

func (e *RemoteError) Is(target error) bool {
	marker, ok := codeMarkers[e.Code]
	return ok && marker == target
}
