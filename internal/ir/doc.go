// Package ir holds the shared data model for syncbridge: identities, the
// constrained value model, canonical JSON, content hashes and the object
// variants that sync states are made of.
//
// ir imports nothing internal. Every other package may import it.
//
// Design constraints:
//   - no float values anywhere; payloads must compare byte-for-byte
//   - canonical JSON (RFC 8785) is the only encoding used for hashing
//   - identities are ed25519 verify keys compared by key bytes
package ir
