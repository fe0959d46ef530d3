// Package key provides API key value types and pure validation functions.
// This package has NO dependencies on I/O or external packages.
package key

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// PrefixLen is the number of leading characters stored in the clear.
// The prefix is non-secret: it is shown in dashboards and used for lookup.
const PrefixLen = 12

// Key represents an API key credential (immutable value type).
// The plaintext secret exists only in the return value of NewSecret;
// only a one-way hash and the display prefix are ever stored.
type Key struct {
	ID         string
	CustomerID string
	Hash       []byte // one-way hash of the full secret
	Prefix     string // first PrefixLen chars, safe to display
	Name       string
	RevokedAt  *time.Time // nil = active
	CreatedAt  time.Time
	LastUsed   *time.Time
}

// ValidationResult represents the outcome of key validation (value type).
type ValidationResult struct {
	Valid  bool
	Key    Key    // populated only if Valid
	Reason string // populated only if !Valid
}

// CreateParams contains parameters for creating a new key.
type CreateParams struct {
	CustomerID string
	Name       string
}

// Reasons for validation failure. These are internal: callers collapse
// every reason into the same opaque auth error so revoked and unknown
// keys cannot be distinguished from outside.
const (
	ReasonValid     = ""
	ReasonNotFound  = "key_not_found"
	ReasonRevoked   = "key_revoked"
	ReasonBadFormat = "invalid_format"
)

// NewSecret generates a new API key secret with the given prefix
// (e.g. "dk_"). The raw secret is prefix + 64 hex chars (256 bits of
// entropy). Hashing and persistence are the caller's job; this function
// only mints the secret and its display prefix.
func NewSecret(secretPrefix string) (rawKey, displayPrefix string) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}

	rawKey = secretPrefix + hex.EncodeToString(randomBytes)
	return rawKey, rawKey[:PrefixLen]
}

// IsActive reports whether the key has not been revoked.
func (k Key) IsActive() bool {
	return k.RevokedAt == nil
}

// WithCustomerID returns a copy of the key with the CustomerID set.
func (k Key) WithCustomerID(customerID string) Key {
	k.CustomerID = customerID
	return k
}

// WithName returns a copy of the key with the Name set.
func (k Key) WithName(name string) Key {
	k.Name = name
	return k
}
