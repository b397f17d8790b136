// Package daemon coordinates the long-running capturepair process and its
// system integration points.
//
// It wires the assembled pairing runtime, the HTTP API, and the USB hotplug
// monitor into a single lifecycle with flock-based locking so only one daemon
// drives devices on a host. Hotplug events only mark the device list stale;
// enumeration stays an explicit request.
//
// Keep orchestration logic here: pairing behaviour lives in internal/pairing
// while the daemon focuses on startup, shutdown, and transport.
package daemon
