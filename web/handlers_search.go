package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/docpilot/metergate/app"
	"github.com/docpilot/metergate/domain/quota"
)

// handleSearch is the admission-controlled product endpoint. The quota
// counter moves before the upstream call: a request that times out
// upstream has still consumed its admission.
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	rawKey := h.extractAPIKey(r)
	if rawKey == "" {
		writeError(w, http.StatusUnauthorized, "invalid_key", "The provided API key is invalid")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Missing query parameter q")
		return
	}
	library := r.URL.Query().Get("library")

	adm, err := h.admission.Admit(r.Context(), rawKey, library)
	if err != nil {
		h.countAdmission(adm, err)
		if errors.Is(err, app.ErrQuotaExceeded) {
			setQuotaHeaders(w, adm.Decision)
		}
		writeServiceError(w, err)
		return
	}
	h.countAdmission(adm, nil)
	setQuotaHeaders(w, adm.Decision)

	body, status, latency, err := h.docs.Search(r.Context(), query, library)
	if err != nil {
		h.logger.Error().Err(err).Str("library", library).Msg("docs upstream failed")
		// Admission already consumed quota; the ledger records the
		// failed call too.
		h.admission.RecordAdmitted(adm, library, latency)
		writeError(w, http.StatusBadGateway, "upstream_error", "Documentation service unavailable")
		return
	}
	h.admission.RecordAdmitted(adm, library, latency)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// extractAPIKey pulls the key from the configured header or a bearer
// token.
func (h *Handler) extractAPIKey(r *http.Request) string {
	if v := r.Header.Get(h.keyHeader); v != "" {
		return v
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func setQuotaHeaders(w http.ResponseWriter, d quota.Decision) {
	if d.Ceiling < 0 {
		w.Header().Set("X-Quota-Limit", "unlimited")
		return
	}
	w.Header().Set("X-Quota-Limit", strconv.FormatInt(d.Ceiling, 10))
	w.Header().Set("X-Quota-Remaining", strconv.FormatInt(quota.Remaining(d.Count, d.Ceiling), 10))
}

func (h *Handler) countAdmission(adm app.Admission, err error) {
	if h.metrics == nil {
		return
	}
	outcome := "admitted"
	switch {
	case errors.Is(err, app.ErrAuth):
		outcome = "rejected_auth"
	case errors.Is(err, app.ErrQuotaExceeded):
		outcome = "rejected_quota"
	case err != nil:
		outcome = "error"
	}
	h.metrics.AdmissionsTotal.WithLabelValues(outcome, adm.PlanID).Inc()

	if err == nil && adm.Decision.Ceiling > 0 {
		h.metrics.QuotaUsed.WithLabelValues(adm.CustomerID, adm.PlanID).
			Set(float64(adm.Decision.Count) / float64(adm.Decision.Ceiling))
	}
}
