// Package app provides application services that orchestrate domain logic.
package app

import "errors"

// Service-level errors. Handlers map these onto HTTP statuses; nothing
// below the web layer speaks HTTP.
var (
	// ErrAuth covers every authentication failure: bad format, unknown
	// key, revoked key, suspended account. It is deliberately opaque so a
	// caller probing with a revoked key learns nothing beyond "invalid".
	ErrAuth = errors.New("invalid API key")

	// ErrQuotaExceeded means the key authenticated fine but the plan's
	// monthly ceiling is spent.
	ErrQuotaExceeded = errors.New("monthly quota exceeded")

	// ErrKeyLimitReached means the plan's active-key limit is reached.
	ErrKeyLimitReached = errors.New("active key limit reached for plan")

	// ErrNotFound means the addressed record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the record exists but belongs to someone else.
	ErrForbidden = errors.New("forbidden")

	// ErrUnknownPlan means a plan id does not resolve in the plan table.
	ErrUnknownPlan = errors.New("unknown plan")
)
