// Package api defines wire-format types and the service facade shared by the
// daemon's HTTP API and the CLI. It translates pairing models into
// transport-friendly DTOs so consumers can render them without coupling to
// internal types.
//
// # Key Types
//
// Service: the operations a presentation layer may invoke. Local implements it
// in-process over the pairing core; the ipc client implements it over HTTP.
//
// Session: transport representation of a pairing session, including the
// verbatim failure reason and error kind.
//
// DaemonStatus: driver state, current and last session, device count, and
// preflight results.
//
// # Converters
//
// FromSession, FromDriverState, FromSnapshot: pairing models to DTOs.
//
// # Errors
//
// ErrorCode classifies an error into a stable code carried in ErrorResponse;
// RemoteError turns it back into an error that matches the original
// taxonomy marker with errors.Is.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Terminal session outcomes, including failed ones, are successful responses
// carrying the session; only guard and transport failures are errors.
package api
