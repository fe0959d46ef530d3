package web

import (
	"context"
	"net/http"
)

// subjectAuth authenticates dashboard requests via the identity proxy
// headers. Login itself is delegated to the identity provider sitting
// in front of this service; by the time a request lands here the proxy
// has verified the session and stamped the subject headers.
//
// On first sight of a subject a default-plan customer is provisioned,
// anchored to today's day-of-month.
func (h *Handler) subjectAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := r.Header.Get(h.subjectHeader)
		if subject == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "Missing identity")
			return
		}

		cust, err := h.account.Ensure(r.Context(), subject,
			r.Header.Get("X-Subject-Email"),
			r.Header.Get("X-Subject-Name"))
		if err != nil {
			h.logger.Error().Err(err).Str("subject", subject).Msg("customer provisioning failed")
			writeError(w, http.StatusInternalServerError, "internal", "Internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), customerKey, cust)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
