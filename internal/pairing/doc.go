// Package pairing sequences device readiness work: the host driver gate, the
// attached-device registry, the developer mode gate, and the session
// controller that drives one device at a time from driver verification through
// setup.
//
// Every backend call is fallible and runs detached from the caller's context,
// so an abandoned request never cancels an install or a setup already in
// flight. Guards reject work attempted from the wrong state instead of
// queueing it.
package pairing
