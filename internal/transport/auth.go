package transport

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/roach88/syncbridge/internal/ir"
)

// DefaultTokenTTL bounds how long a session token is accepted.
const DefaultTokenTTL = 2 * time.Minute

// ErrUnauthenticated is returned when a session token is missing, malformed,
// expired, or not signed by a known peer.
var ErrUnauthenticated = errors.New("unauthenticated")

// PeerDirectory looks up known peers by verify key. *store.Store
// implements it.
type PeerDirectory interface {
	GetPeerByVerifyKey(ctx context.Context, key ir.Identity) (ir.Node, error)
}

// IssueToken signs a session token naming self as subject and the peer
// being dialled as audience.
func IssueToken(key ed25519.PrivateKey, self, audience ir.Identity, now time.Time, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	claims := jwt.RegisteredClaims{
		Subject:   self.String(),
		Audience:  jwt.ClaimStrings{audience.String()},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks a session token addressed to self and returns the
// authenticated sender. The sender must be a known peer: its registered
// verify key is the only key the signature is checked against.
func VerifyToken(ctx context.Context, token string, self ir.Identity, peers PeerDirectory, now func() time.Time) (ir.Identity, error) {
	if now == nil {
		now = time.Now
	}
	var claims jwt.RegisteredClaims
	var sender ir.Identity

	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		sub, err := t.Claims.GetSubject()
		if err != nil {
			return nil, err
		}
		id, err := ir.ParseIdentity(sub)
		if err != nil {
			return nil, err
		}
		peer, err := peers.GetPeerByVerifyKey(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("unknown peer %s: %w", id.Short(), err)
		}
		sender = peer.VerifyKey
		return peer.VerifyKey.PublicKey(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithAudience(self.String()),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(now),
	)
	if err != nil {
		return ir.Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	return sender, nil
}
