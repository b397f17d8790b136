// Package services defines the error taxonomy and context helpers shared by the
// pairing core, the device backend, and the daemon.
//
// Key responsibilities:
//   - Sentinel markers (ErrDriverCheck, ErrDeviceUnreachable, ErrSetup, ...)
//     plus the Wrap helper so every failure carries component context and a
//     classifiable cause.
//   - Typed InstallError and SetupError values that preserve installer and
//     setup messages verbatim for display.
//   - Context helpers that stamp session IDs, device IDs, and correlation
//     identifiers for logging.
package services
