// Package diff compares two sides' object snapshots.
//
// Compute produces one ObjectDiff per object id seen on either side and
// groups them into batches of objects linked by references, so a result is
// never resolved apart from the job and code that produced it.
package diff
