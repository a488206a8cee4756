package models

import (
	"encoding/hex"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	dErrors "registrar/pkg/domain-errors"
)

// IdentitySize is the width of an Identity in bytes.
const IdentitySize = 32

// identityHashCode is the multihash code for blake2b-256.
const identityHashCode = multihash.BLAKE2B_MIN + 31

// Identity is the content-derived key of a record: a blake2b-256 digest of the
// record's canonical encoding. Its text form is a CIDv1 over the raw codec.
type Identity [IdentitySize]byte

// IdentityFromBytes copies a digest into an Identity.
func IdentityFromBytes(b []byte) (Identity, error) {
	var id Identity
	if len(b) != IdentitySize {
		return id, fmt.Errorf("identity must be %d bytes, got %d", IdentitySize, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// ParseIdentity parses the CID text form produced by Identity.String.
func ParseIdentity(s string) (Identity, error) {
	if s == "" {
		return Identity{}, dErrors.New(dErrors.CodeInvalidInput, "identity is required")
	}
	c, err := cid.Decode(s)
	if err != nil {
		return Identity{}, dErrors.New(dErrors.CodeInvalidInput, "invalid identity")
	}
	if c.Version() != 1 || c.Type() != cid.Raw {
		return Identity{}, dErrors.New(dErrors.CodeInvalidInput, "identity must be a raw CIDv1")
	}
	decoded, err := multihash.Decode(c.Hash())
	if err != nil || decoded.Code != identityHashCode {
		return Identity{}, dErrors.New(dErrors.CodeInvalidInput, "identity must use blake2b-256")
	}
	id, err := IdentityFromBytes(decoded.Digest)
	if err != nil {
		return Identity{}, dErrors.New(dErrors.CodeInvalidInput, "invalid identity digest length")
	}
	return id, nil
}

// CID returns the identity as a CIDv1 (raw codec, blake2b-256 multihash).
func (id Identity) CID() cid.Cid {
	mh, err := multihash.Encode(id[:], identityHashCode)
	if err != nil {
		// Encode only fails for unknown codes or digests longer than the
		// code allows; blake2b-256 with 32 bytes is always valid.
		return cid.Undef
	}
	return cid.NewCidV1(cid.Raw, mh)
}

func (id Identity) String() string {
	return id.CID().String()
}

// Hex returns the lowercase hex digest, used as a storage key.
func (id Identity) Hex() string {
	return hex.EncodeToString(id[:])
}

func (id Identity) IsZero() bool {
	return id == Identity{}
}

func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(b []byte) error {
	parsed, err := ParseIdentity(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
