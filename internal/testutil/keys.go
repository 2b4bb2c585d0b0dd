package testutil

import (
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"

	"github.com/roach88/syncbridge/internal/ir"
)

// Key derives a deterministic ed25519 key from seed.
//
// The same seed always yields the same key, so identities printed in golden
// files never change between runs.
func Key(seed string) ed25519.PrivateKey {
	sum := sha256.Sum256([]byte("syncbridge-test/" + seed))
	return ed25519.NewKeyFromSeed(sum[:])
}

// Identity returns the verify key of Key(seed).
func Identity(seed string) ir.Identity {
	id, err := ir.IdentityOf(Key(seed).Public().(ed25519.PublicKey))
	if err != nil {
		panic(err)
	}
	return id
}

// Node returns a node named name whose identity is Identity(name).
func Node(name string) ir.Node {
	return ir.Node{
		Name:      name,
		ID:        fmt.Sprintf("node-%s", name),
		VerifyKey: Identity(name),
		Route:     fmt.Sprintf("ws://%s.test/sessions", name),
	}
}
