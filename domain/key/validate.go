package key

import (
	"strings"
	"time"
)

// Validate checks if a key is usable at the given time.
// This is a PURE function - no side effects, deterministic.
func Validate(k Key, now time.Time) ValidationResult {
	if k.RevokedAt != nil {
		return ValidationResult{
			Valid:  false,
			Reason: ReasonRevoked,
		}
	}

	return ValidationResult{
		Valid: true,
		Key:   k,
	}
}

// ValidateFormat checks if a raw API key has valid format.
// Returns (prefix, valid). Prefix is used for store lookup.
// This is a PURE function.
func ValidateFormat(rawKey string, secretPrefix string) (prefix string, valid bool) {
	if !strings.HasPrefix(rawKey, secretPrefix) {
		return "", false
	}

	// Must be prefix + 64 hex chars
	if len(rawKey) < len(secretPrefix)+64 {
		return "", false
	}

	if len(rawKey) >= PrefixLen {
		prefix = rawKey[:PrefixLen]
	} else {
		prefix = rawKey
	}

	return prefix, true
}
