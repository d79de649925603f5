// Package model provides the data the billable services operate on.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// NormalizeKey upper-cases a product key or offer SKU into its canonical
// stored form. Equality of keys anywhere else in the system is a bug.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// IdentityHash produces the stable SHA-256 hash of an identity value used
// for trial-reuse tracking. Identity values are lower-cased before hashing,
// unlike keys and SKUs.
func IdentityHash(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// NewTimeOrderedID returns a UUIDv7, sortable by creation time. Batch and
// transaction ids must recover FIFO ordering even when created_at ties at
// millisecond resolution.
func NewTimeOrderedID() (uuid.UUID, error) {
	return uuid.NewV7()
}

// SyntheticUsername is the username materialized for a user created through
// identity resolution. Resolution is the only place users are created.
func SyntheticUsername(provider, externalID string) string {
	return "billable_" + provider + "_" + strings.TrimSpace(externalID)
}
