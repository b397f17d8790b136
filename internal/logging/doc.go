// Package logging assembles structured slog loggers and formatting helpers used
// across capturepair.
//
// It owns the console and JSON handlers, level and output plumbing, and the
// standard field keys (component, session_id, device_id, event_type) that the
// pairing core, backend, and daemon attach to their records. Context helpers
// copy session and request identifiers from a context.Context onto a logger,
// and NewNop gives tests and optional wiring a logger that cannot fail.
package logging
