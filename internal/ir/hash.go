package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Domain prefixes for content hashes. The version suffix leaves room for
// changing the algorithm later.
const (
	DomainProject = "syncbridge/project/v1"
	DomainEvent   = "syncbridge/event/v1"
	DomainObject  = "syncbridge/object/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data) as hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash canonicalises v and hashes it under domain.
func ContentHash(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

// CanonicalObject returns the canonical JSON bytes of an object's fields.
func CanonicalObject(obj Object) ([]byte, error) {
	data, err := MarshalCanonical(obj.Fields())
	if err != nil {
		return nil, fmt.Errorf("canonical %s %s: %w", obj.ObjectType(), obj.ObjectID(), err)
	}
	return data, nil
}

// ObjectDigest returns a CIDv1 (raw codec, sha2-256) over the domain-separated
// canonical form of obj. Equal digests mean byte-identical representations.
func ObjectDigest(obj Object) (string, error) {
	data, err := CanonicalObject(obj)
	if err != nil {
		return "", err
	}
	payload := make([]byte, 0, len(DomainObject)+1+len(data))
	payload = append(payload, DomainObject...)
	payload = append(payload, 0x00)
	payload = append(payload, data...)
	sum, err := multihash.Sum(payload, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("object digest: %w", err)
	}
	return cid.NewCidV1(cid.Raw, sum).String(), nil
}
