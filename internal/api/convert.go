package api

import (
	"time"

	"capturepair/internal/pairing"
	"capturepair/internal/preflight"
)

// FromDriverState converts the driver gate snapshot.
func FromDriverState(state pairing.DriverState) DriverState {
	return DriverState{
		Phase:       string(state.Phase),
		Message:     state.Message,
		NotRequired: state.NotRequired,
		UpdatedAt:   formatTime(state.UpdatedAt),
	}
}

// FromSession converts a pairing session.
func FromSession(s pairing.Session) Session {
	return Session{
		ID:             s.ID,
		Operation:      string(s.Operation),
		DeviceID:       s.DeviceID,
		DeviceName:     s.DeviceName,
		State:          string(s.State),
		DevMode:        string(s.DevMode),
		ErrorKind:      s.ErrorKind,
		ErrorMessage:   s.ErrorMessage,
		PairingFile:    s.PairingFile,
		PairingBytes:   s.PairingBytes,
		StartedAt:      formatTime(s.StartedAt),
		FinishedAt:     formatTime(s.FinishedAt),
		DurationMillis: s.Duration().Milliseconds(),
	}
}

// FromSessions converts a slice of sessions, preserving order.
func FromSessions(sessions []pairing.Session) []Session {
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, FromSession(s))
	}
	return out
}

// FromSnapshot converts a registry snapshot using the registry's labels.
func FromSnapshot(snap pairing.Snapshot, choices []pairing.Choice) DeviceList {
	labels := make(map[string]string, len(choices))
	for _, c := range choices {
		labels[c.Device.ID] = c.Label
	}
	devices := make([]Device, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		label := labels[d.ID]
		if label == "" {
			label = d.Name
		}
		devices = append(devices, Device{ID: d.ID, Name: d.Name, Label: label})
	}
	return DeviceList{
		Devices:     devices,
		Generation:  snap.Generation,
		RefreshedAt: formatTime(snap.RefreshedAt),
		Stale:       snap.Stale,
		StaleReason: snap.StaleReason,
	}
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
