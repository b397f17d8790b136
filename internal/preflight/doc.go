// Package preflight provides readiness checks for the device tools, host
// drivers, and filesystem paths capturepair depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs failures as warnings; nothing
//     here is fatal because the driver gate and sessions report their own errors.
//   - The CLI "capturepair status" command renders the same results.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
