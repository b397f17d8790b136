// Package ipc provides the client side of the daemon's HTTP API. Client
// implements api.Service so CLI commands run the same code whether the
// daemon is running or the work happens in-process.
package ipc
