// Package identity derives content-addressed record identities.
package identity

import (
	"golang.org/x/crypto/blake2b"

	"registrar/internal/registry/models"
)

// Derive hashes canonical content into an Identity. It is pure; callers must
// pass the fully constructed record content, generated attributes included.
func Derive(content []byte) models.Identity {
	return models.Identity(blake2b.Sum256(content))
}

// ForRecord derives the identity of a record from its canonical encoding.
func ForRecord(record *models.Record) models.Identity {
	return Derive(record.CanonicalBytes())
}
