// Package history keeps a SQLite log of finished pairing sessions and pairing
// file exports so operators can see what happened to each device.
//
// The database lives at <state_dir>/history.db and is opened in WAL mode.
// Rows are append-only apart from retention pruning.
package history
