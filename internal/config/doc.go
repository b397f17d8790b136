// Package config loads, normalizes, and validates capturepair configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CAPTUREPAIR_API_TOKEN. The Config type centralizes every knob the daemon and
// CLI need: where state and pairing files live, which device tools the backend
// shells out to, and how drivers are probed and installed.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
