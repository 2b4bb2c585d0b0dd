package ir

// Version is the syncbridge release.
const Version = "0.1.0"

// SchemaVersion is the layout of the node database, recorded as its SQLite
// user_version.
//
//	0 - initial schema
//	1 - notification inbox index
const SchemaVersion = 1
