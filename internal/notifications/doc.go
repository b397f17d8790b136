// Package notifications delivers pairing events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled.
// Enumerated event types cover session outcomes and driver installs so the
// controller and driver gate emit consistent messages without duplicating HTTP
// glue.
package notifications
