package web

import (
	"crypto/hmac"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/docpilot/metergate/app"
	"github.com/docpilot/metergate/domain/billing"
)

const maxWebhookBody = 1 << 20 // 1MB

// handleBillingWebhook receives provider-signed events (Stripe). The
// provider retries on non-2xx, so permanent failures (unknown plan,
// unknown customer) are acknowledged to stop the redelivery loop and
// surface in logs and metrics instead.
func (h *Handler) handleBillingWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Failed to read payload")
		return
	}

	err = h.webhooks.HandleProviderEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	h.countWebhook("stripe", err)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, app.ErrUnknownPlan), errors.Is(err, app.ErrNotFound):
		h.logger.Warn().Err(err).Msg("billing webhook dropped")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	default:
		h.logger.Error().Err(err).Msg("billing webhook failed")
		writeError(w, http.StatusBadRequest, "webhook_error", "Webhook processing failed")
	}
}

// handleGenericWebhook receives the processor-agnostic notification
// shape, authenticated by a shared secret.
func (h *Handler) handleGenericWebhook(w http.ResponseWriter, r *http.Request) {
	if h.genericSecret == "" {
		writeError(w, http.StatusNotFound, "not_found", "Resource not found")
		return
	}
	if !hmac.Equal([]byte(r.Header.Get("X-Webhook-Secret")), []byte(h.genericSecret)) {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Invalid webhook secret")
		return
	}

	var n billing.Notification
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&n); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	err := h.webhooks.HandleNotification(r.Context(), n)
	h.countWebhook("generic", err)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	case errors.Is(err, app.ErrUnknownPlan), errors.Is(err, app.ErrNotFound):
		h.logger.Warn().Err(err).Str("source_event_id", n.SourceEventID).Msg("plan change dropped")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	default:
		h.logger.Error().Err(err).Msg("generic webhook failed")
		writeError(w, http.StatusBadRequest, "webhook_error", "Webhook processing failed")
	}
}

func (h *Handler) countWebhook(source string, err error) {
	if h.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	h.metrics.WebhookEvents.WithLabelValues(source, result).Inc()
}
