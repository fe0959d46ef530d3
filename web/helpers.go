package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/docpilot/metergate/app"
	"github.com/docpilot/metergate/ports"
)

type contextKey string

const customerKey contextKey = "customer"

// customerFrom returns the authenticated customer placed in the request
// context by subjectAuth.
func customerFrom(ctx context.Context) (ports.Customer, bool) {
	c, ok := ctx.Value(customerKey).(ports.Customer)
	return c, ok
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeServiceError maps service errors onto HTTP statuses. Auth
// failures stay opaque; everything unexpected becomes a plain 500
// without leaking internals.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrAuth):
		writeError(w, http.StatusUnauthorized, "invalid_key", "The provided API key is invalid")
	case errors.Is(err, app.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, "quota_exceeded", "Monthly request quota exceeded")
	case errors.Is(err, app.ErrKeyLimitReached):
		writeError(w, http.StatusConflict, "key_limit_reached", "Active key limit for the current plan reached")
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, app.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "Resource belongs to another account")
	case errors.Is(err, app.ErrUnknownPlan):
		writeError(w, http.StatusUnprocessableEntity, "unknown_plan", "Plan is not in the plan table")
	default:
		writeError(w, http.StatusInternalServerError, "internal", "Internal server error")
	}
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}

// queryInt parses an integer query parameter with a fallback.
func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
