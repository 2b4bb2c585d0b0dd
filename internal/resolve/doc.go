// Package resolve turns a NodeDiff into per-object sync decisions.
//
// Resolve walks the diff's batches in order, obtains a side for each changed
// batch, negotiates which private objects are shared with the governing
// code's user, and folds the outcome into one ResolvedSyncState per side.
// Human input is behind DecisionProvider; Prompter reads a terminal and
// Scripted replays fixed answers.
package resolve
