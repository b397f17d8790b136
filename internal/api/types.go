package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// DriverState describes host driver readiness.
type DriverState struct {
	Phase       string `json:"phase" yaml:"phase"`
	Message     string `json:"message,omitempty" yaml:"message,omitempty"`
	NotRequired bool   `json:"notRequired" yaml:"not_required"`
	UpdatedAt   string `json:"updatedAt,omitempty" yaml:"updated_at,omitempty"`
}

// Device is one attached device with a label unique within its listing.
type Device struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Label string `json:"label" yaml:"label"`
}

// DeviceList is the registry snapshot in transport form.
type DeviceList struct {
	Devices     []Device `json:"devices" yaml:"devices"`
	Generation  uint64   `json:"generation" yaml:"generation"`
	RefreshedAt string   `json:"refreshedAt,omitempty" yaml:"refreshed_at,omitempty"`
	Stale       bool     `json:"stale" yaml:"stale"`
	StaleReason string   `json:"staleReason,omitempty" yaml:"stale_reason,omitempty"`
}

// Session describes a pairing session in a transport-friendly format.
type Session struct {
	ID             string `json:"id" yaml:"id"`
	Operation      string `json:"operation" yaml:"operation"`
	DeviceID       string `json:"deviceId" yaml:"device_id"`
	DeviceName     string `json:"deviceName,omitempty" yaml:"device_name,omitempty"`
	State          string `json:"state" yaml:"state"`
	DevMode        string `json:"devMode" yaml:"dev_mode"`
	ErrorKind      string `json:"errorKind,omitempty" yaml:"error_kind,omitempty"`
	ErrorMessage   string `json:"errorMessage,omitempty" yaml:"error_message,omitempty"`
	PairingFile    string `json:"pairingFile,omitempty" yaml:"pairing_file,omitempty"`
	PairingBytes   int64  `json:"pairingBytes,omitempty" yaml:"pairing_bytes,omitempty"`
	StartedAt      string `json:"startedAt,omitempty" yaml:"started_at,omitempty"`
	FinishedAt     string `json:"finishedAt,omitempty" yaml:"finished_at,omitempty"`
	DurationMillis int64  `json:"durationMillis,omitempty" yaml:"duration_millis,omitempty"`
}

// CheckResult mirrors one preflight check.
type CheckResult struct {
	Name   string `json:"name" yaml:"name"`
	Passed bool   `json:"passed" yaml:"passed"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// DaemonStatus aggregates runtime information for API consumers.
type DaemonStatus struct {
	Running       bool           `json:"running" yaml:"running"`
	PID           int            `json:"pid,omitempty" yaml:"pid,omitempty"`
	HistoryPath   string         `json:"historyPath,omitempty" yaml:"history_path,omitempty"`
	LockFilePath  string         `json:"lockFilePath,omitempty" yaml:"lock_file_path,omitempty"`
	Drivers       DriverState    `json:"drivers" yaml:"drivers"`
	Session       *Session       `json:"session,omitempty" yaml:"session,omitempty"`
	LastSession   *Session       `json:"lastSession,omitempty" yaml:"last_session,omitempty"`
	DeviceCount   int            `json:"deviceCount" yaml:"device_count"`
	SessionCounts map[string]int `json:"sessionCounts,omitempty" yaml:"session_counts,omitempty"`
	Checks        []CheckResult  `json:"checks" yaml:"checks"`
}

// HistoryQuery filters session history.
type HistoryQuery struct {
	DeviceID string
	Limit    int
}

// BeginSessionRequest starts a setup session. DeviceID may also be a label
// or a unique device name.
type BeginSessionRequest struct {
	DeviceID string `json:"deviceId"`
}

// PairingFileRequest exports a pairing file. An empty destination uses the
// configured pairing directory.
type PairingFileRequest struct {
	Destination string `json:"destination,omitempty"`
}

// SessionResponse wraps a single session; Session is nil when none is running.
type SessionResponse struct {
	Session *Session `json:"session"`
}

// HistoryResponse wraps a collection of finished sessions.
type HistoryResponse struct {
	Sessions []Session `json:"sessions"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
