// Package harness runs reconciliation scenarios end to end.
//
// A scenario names two snapshot files, the decisions a user would make and
// the outcome it expects. Run loads both snapshots, computes the diff,
// resolves it with a scripted decision provider, applies the low side's
// decisions to a fresh in-memory store and evaluates the assertions.
//
// RunWithGolden also compares the canonical JSON of the decisions against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
