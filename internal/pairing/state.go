package pairing

import "time"

// DriverPhase is the host driver readiness state.
type DriverPhase string

const (
	DriverUnknown    DriverPhase = "unknown"
	DriverMissing    DriverPhase = "missing"
	DriverInstalling DriverPhase = "installing"
	DriverInstalled  DriverPhase = "installed"
	DriverFailed     DriverPhase = "failed"
)

// DriverState is a snapshot of the driver gate. Message is set for failed
// installs; NotRequired marks platforms that never need drivers.
type DriverState struct {
	Phase       DriverPhase `json:"phase" yaml:"phase"`
	Message     string      `json:"message,omitempty" yaml:"message,omitempty"`
	NotRequired bool        `json:"not_required,omitempty" yaml:"not_required,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at,omitzero" yaml:"updated_at,omitempty"`
}

// Installed reports whether device work may proceed.
func (s DriverState) Installed() bool {
	return s.Phase == DriverInstalled
}

// SessionState is a step of the pairing session state machine.
type SessionState string

const (
	StateIdle                  SessionState = "idle"
	StateDriverCheck           SessionState = "driver_check"
	StateAwaitingDriverInstall SessionState = "awaiting_driver_install"
	StateDevModeCheck          SessionState = "dev_mode_check"
	StateAwaitingDevModeEnable SessionState = "awaiting_dev_mode_enable"
	StateSetup                 SessionState = "setup"
	StateExporting             SessionState = "exporting"
	StateComplete              SessionState = "complete"
	StateFailed                SessionState = "failed"
)

// Terminal reports whether the state ends a session attempt. The two awaiting
// states are terminal for the attempt; the user re-enters with a new session.
func (s SessionState) Terminal() bool {
	switch s {
	case StateAwaitingDriverInstall, StateAwaitingDevModeEnable, StateComplete, StateFailed:
		return true
	default:
		return false
	}
}

// DevModeState is the per-session developer mode observation. It is never
// cached across sessions.
type DevModeState string

const (
	DevModeUnknown         DevModeState = "unknown"
	DevModeDisabled        DevModeState = "disabled"
	DevModeRevealRequested DevModeState = "reveal_requested"
	DevModeEnabled         DevModeState = "enabled"
)

// Operation distinguishes device setup sessions from pairing file exports.
type Operation string

const (
	OperationSetup       Operation = "setup"
	OperationPairingFile Operation = "pairing_file"
)

// Session is one attempt to ready a single device.
type Session struct {
	ID           string       `json:"id" yaml:"id"`
	Operation    Operation    `json:"operation" yaml:"operation"`
	DeviceID     string       `json:"device_id" yaml:"device_id"`
	DeviceName   string       `json:"device_name,omitempty" yaml:"device_name,omitempty"`
	State        SessionState `json:"state" yaml:"state"`
	DevMode      DevModeState `json:"dev_mode" yaml:"dev_mode"`
	ErrorKind    string       `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	ErrorMessage string       `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	PairingFile  string       `json:"pairing_file,omitempty" yaml:"pairing_file,omitempty"`
	PairingBytes int64        `json:"pairing_bytes,omitempty" yaml:"pairing_bytes,omitempty"`
	StartedAt    time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt   time.Time    `json:"finished_at,omitzero" yaml:"finished_at,omitempty"`
}

// Duration returns the elapsed session time, or zero while it is running.
func (s Session) Duration() time.Duration {
	if s.FinishedAt.IsZero() || s.StartedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Transition is one observed state change.
type Transition struct {
	SessionID string       `json:"session_id"`
	DeviceID  string       `json:"device_id"`
	From      SessionState `json:"from"`
	To        SessionState `json:"to"`
	At        time.Time    `json:"at"`
}
