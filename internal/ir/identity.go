package ir

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Identity is an ed25519 verify key naming a user or a node.
// Two identities are equal exactly when their key bytes are equal, so
// Identity can be compared with == and used as a map key.
type Identity [ed25519.PublicKeySize]byte

// IdentityOf converts an ed25519 public key into an Identity.
func IdentityOf(pub ed25519.PublicKey) (Identity, error) {
	var id Identity
	if len(pub) != ed25519.PublicKeySize {
		return id, fmt.Errorf("invalid verify key length %d", len(pub))
	}
	copy(id[:], pub)
	return id, nil
}

// ParseIdentity parses the lowercase hex form produced by String.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("parse identity: %w", err)
	}
	return IdentityOf(raw)
}

// MustParseIdentity is like ParseIdentity but panics on error.
// Use only in tests or with constant input.
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

// PublicKey returns the key as an ed25519.PublicKey.
func (id Identity) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(id[:])
}

// IsZero reports whether id is unset.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 8 hex characters, for display only.
func (id Identity) Short() string {
	return id.String()[:8]
}

// MarshalText implements encoding.TextMarshaler.
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Permission is the kind of capability granted on an object.
type Permission string

const (
	PermissionRead  Permission = "READ"
	PermissionWrite Permission = "WRITE"
)

// ActionObjectPermission grants Permission on ObjectID to Credentials.
type ActionObjectPermission struct {
	ObjectID    string     `json:"object_id" yaml:"object_id"`
	Permission  Permission `json:"permission" yaml:"permission"`
	Credentials Identity   `json:"credentials" yaml:"credentials"`
}

// ReadGrant is shorthand for a READ permission on objectID for who.
func ReadGrant(objectID string, who Identity) ActionObjectPermission {
	return ActionObjectPermission{ObjectID: objectID, Permission: PermissionRead, Credentials: who}
}

func (p ActionObjectPermission) String() string {
	return fmt.Sprintf("%s %s -> %s", p.Permission, p.ObjectID, p.Credentials.Short())
}
