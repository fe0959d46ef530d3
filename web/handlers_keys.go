package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/docpilot/metergate/app"
)

// keyResponse is the dashboard view of a key. The secret never appears
// here; only createKeyResponse carries it, exactly once.
type keyResponse struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Prefix            string     `json:"prefix"`
	Revoked           bool       `json:"revoked"`
	RevokedAt         *time.Time `json:"revokedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	LastUsed          *time.Time `json:"lastUsed,omitempty"`
	RequestsThisMonth int64      `json:"requestsThisMonth"`
}

type createKeyRequest struct {
	Name string `json:"name"`
}

type createKeyResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Prefix    string    `json:"prefix"`
	Key       string    `json:"key"` // full secret, shown only in this response
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	cust, ok := customerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Missing identity")
		return
	}

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if len(req.Name) > 128 {
		writeError(w, http.StatusBadRequest, "bad_request", "Key name too long")
		return
	}

	created, err := h.keys.Create(r.Context(), cust.ID, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createKeyResponse{
		ID:        created.Key.ID,
		Name:      created.Key.Name,
		Prefix:    created.Key.Prefix,
		Key:       created.Plaintext,
		CreatedAt: created.Key.CreatedAt,
	})
}

func (h *Handler) handleListKeys(w http.ResponseWriter, r *http.Request) {
	cust, ok := customerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Missing identity")
		return
	}

	infos, err := h.keys.List(r.Context(), cust.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	keys := make([]keyResponse, len(infos))
	for i, info := range infos {
		keys[i] = toKeyResponse(info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (h *Handler) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	cust, ok := customerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Missing identity")
		return
	}

	keyID := chi.URLParam(r, "keyID")
	if err := h.keys.Revoke(r.Context(), cust.ID, keyID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toKeyResponse(info app.KeyInfo) keyResponse {
	return keyResponse{
		ID:                info.Key.ID,
		Name:              info.Key.Name,
		Prefix:            info.Key.Prefix,
		Revoked:           !info.Key.IsActive(),
		RevokedAt:         info.Key.RevokedAt,
		CreatedAt:         info.Key.CreatedAt,
		LastUsed:          info.Key.LastUsed,
		RequestsThisMonth: info.RequestsThisMonth,
	}
}
