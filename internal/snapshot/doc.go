// Package snapshot loads one side's object state from a YAML file.
//
// A file has an alias (low or high), a node name, the ids that side has
// tracked, and a list of objects tagged by kind:
//
//	alias: high
//	node: public
//	tracked: [a-code]
//	objects:
//	  - kind: UserCode
//	    id: a-code
//	    user_verify_key: 4f3c...
//
// Files are checked against an embedded CUE schema before decoding.
package snapshot
