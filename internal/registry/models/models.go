package models

import (
	"encoding/binary"
	"encoding/hex"
	"time"
	"unicode/utf8"

	id "registrar/pkg/domain"
	dErrors "registrar/pkg/domain-errors"
)

// Sequence is the ambient tick a record was created at.
type Sequence uint64

// Input bounds.
const (
	MaxNameLength   = 64
	MaxGenderLength = 32
	MaxAge          = 200
	MaxSeedLength   = 32
	DNASize         = 32
)

// Profile is the caller-supplied part of a record's content.
type Profile struct {
	Name   string `json:"name"`
	Age    uint32 `json:"age"`
	Gender string `json:"gender,omitempty"`
}

// Validate checks profile bounds at the trust boundary.
func (p Profile) Validate() error {
	if p.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "profile name is required")
	}
	if len(p.Name) > MaxNameLength {
		return dErrors.New(dErrors.CodeValidation, "profile name is too long")
	}
	if !utf8.ValidString(p.Name) || !utf8.ValidString(p.Gender) {
		return dErrors.New(dErrors.CodeValidation, "profile must be valid UTF-8")
	}
	if len(p.Gender) > MaxGenderLength {
		return dErrors.New(dErrors.CodeValidation, "profile gender is too long")
	}
	if p.Age > MaxAge {
		return dErrors.New(dErrors.CodeValidation, "profile age is out of range")
	}
	return nil
}

// ValidateSeed checks the domain-separation tag supplied by the caller.
func ValidateSeed(seed []byte) error {
	if len(seed) == 0 {
		return dErrors.New(dErrors.CodeValidation, "seed is required")
	}
	if len(seed) > MaxSeedLength {
		return dErrors.New(dErrors.CodeValidation, "seed is too long")
	}
	return nil
}

// DNA is the generated attribute vector of a record.
type DNA [DNASize]byte

func (d DNA) MarshalText() ([]byte, error) {
	out := make([]byte, hex.EncodedLen(len(d)))
	hex.Encode(out, d[:])
	return out, nil
}

func (d *DNA) UnmarshalText(b []byte) error {
	if hex.DecodedLen(len(b)) != DNASize {
		return dErrors.New(dErrors.CodeInvalidInput, "dna must be 32 hex-encoded bytes")
	}
	_, err := hex.Decode(d[:], b)
	return err
}

// Attributes are generated at creation time and never change afterwards.
type Attributes struct {
	DNA      DNA      `json:"dna"`
	Lucky    uint8    `json:"lucky"`
	Seed     []byte   `json:"seed"`
	Sequence Sequence `json:"sequence"`
}

// Record is an immutable registry entity.
type Record struct {
	Identity    Identity     `json:"identity"`
	Owner       id.AccountID `json:"owner"`
	Profile     Profile      `json:"profile"`
	Attributes  Attributes   `json:"attributes"`
	CreatedAt   Sequence     `json:"created_at"`
	CreatedTime time.Time    `json:"created_time"`
}

// canonicalVersion prefixes every canonical encoding so a future layout
// change can never produce the same bytes as this one.
const canonicalVersion byte = 1

// CanonicalBytes returns the deterministic encoding hashed into the record's
// identity. It covers owner, profile, attributes and creation sequence; it
// excludes the identity itself and wall-clock time.
func (r Record) CanonicalBytes() []byte {
	buf := make([]byte, 0, 1+16+len(r.Profile.Name)+len(r.Profile.Gender)+len(r.Attributes.Seed)+DNASize+48)
	buf = append(buf, canonicalVersion)
	owner := [16]byte(r.Owner)
	buf = append(buf, owner[:]...)
	buf = appendBytes(buf, []byte(r.Profile.Name))
	buf = binary.BigEndian.AppendUint32(buf, r.Profile.Age)
	buf = appendBytes(buf, []byte(r.Profile.Gender))
	buf = append(buf, r.Attributes.DNA[:]...)
	buf = appendBytes(buf, r.Attributes.Seed)
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.Attributes.Sequence))
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.CreatedAt))
	return buf
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

// EventType names a registry lifecycle event.
type EventType string

const (
	EventCreated EventType = "entity_created"
	EventRemoved EventType = "entity_removed"
)
