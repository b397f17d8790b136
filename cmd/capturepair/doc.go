// Package main hosts the capturepair CLI entrypoint and command graph.
//
// Commands talk to the daemon over its HTTP API when it is reachable and
// otherwise build the pairing runtime in-process, so every operation works
// with or without a running daemon. Output renders as tables for terminals
// or as JSON/YAML for scripts.
package main
