// Package store provides SQLite-backed storage for syncbridge nodes.
//
// It persists:
//   - Projects and their append-only event logs
//   - Known network peers, keyed by verify key
//   - The notification inbox
//   - Applied sync decisions and the read grants they carry
//
// # Ordering
//
// Events are keyed by (project_id, seq_no). Reads always use
// ORDER BY seq_no ASC so a project loads identically on every node.
//
// # Single writer per project
//
// UpdateProject is a compare-and-swap on the persisted event count. A writer
// that loaded a stale copy gets ErrStaleProject and must reload.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
