// Package web provides the HTTP API: the admission-controlled product
// endpoint, the dashboard endpoints and the billing webhooks.
package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/docpilot/metergate/adapters/metrics"
	"github.com/docpilot/metergate/app"
	"github.com/docpilot/metergate/ports"
)

// Handler provides the HTTP endpoints.
type Handler struct {
	admission *app.AdmissionService
	keys      *app.KeyService
	account   *app.AccountService
	analytics *app.AnalyticsService
	plansync  *app.PlanSyncService
	webhooks  *app.WebhookService
	docs      ports.DocsUpstream
	metrics   *metrics.Collector
	logger    zerolog.Logger

	keyHeader     string
	subjectHeader string
	genericSecret string
	metricsPath   string
}

// Deps contains dependencies for the HTTP handler.
type Deps struct {
	Admission *app.AdmissionService
	Keys      *app.KeyService
	Account   *app.AccountService
	Analytics *app.AnalyticsService
	PlanSync  *app.PlanSyncService
	Webhooks  *app.WebhookService
	Docs      ports.DocsUpstream
	Metrics   *metrics.Collector // nil disables /metrics and instrumentation
	Logger    zerolog.Logger

	KeyHeader     string // default "X-API-Key"
	SubjectHeader string // default "X-Subject-ID"
	GenericSecret string // shared secret for the generic webhook
	MetricsPath   string // default "/metrics"
}

// NewHandler creates a new HTTP handler.
func NewHandler(deps Deps) *Handler {
	keyHeader := deps.KeyHeader
	if keyHeader == "" {
		keyHeader = "X-API-Key"
	}
	subjectHeader := deps.SubjectHeader
	if subjectHeader == "" {
		subjectHeader = "X-Subject-ID"
	}
	metricsPath := deps.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	return &Handler{
		admission:     deps.Admission,
		keys:          deps.Keys,
		account:       deps.Account,
		analytics:     deps.Analytics,
		plansync:      deps.PlanSync,
		webhooks:      deps.Webhooks,
		docs:          deps.Docs,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		keyHeader:     keyHeader,
		subjectHeader: subjectHeader,
		genericSecret: deps.GenericSecret,
		metricsPath:   metricsPath,
	}
}

// Router builds the chi router with all routes mounted.
func (h *Handler) Router(metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", h.handleHealth)

	if metricsHandler != nil {
		r.Method(http.MethodGet, h.metricsPath, metricsHandler)
	}

	// Product surface: API key auth, quota enforced.
	r.Get("/v1/search", h.handleSearch)

	// Dashboard surface: identity-proxy auth.
	r.Group(func(r chi.Router) {
		r.Use(h.subjectAuth)
		r.Post("/v1/keys", h.handleCreateKey)
		r.Get("/v1/keys", h.handleListKeys)
		r.Delete("/v1/keys/{keyID}", h.handleRevokeKey)
		r.Get("/v1/usage", h.handleUsage)
		r.Get("/v1/analytics", h.handleAnalytics)
		r.Get("/v1/profile", h.handleProfile)
		r.Get("/v1/plan-changes", h.handlePlanChanges)
		r.Post("/v1/billing/portal", h.handleBillingPortal)
	})

	// Billing surface: processor-signed payloads.
	r.Post("/webhooks/billing", h.handleBillingWebhook)
	r.Post("/webhooks/billing/generic", h.handleGenericWebhook)

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger logs each request with zerolog after it completes.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		if h.metrics != nil {
			h.metrics.RequestsInFlight.Inc()
			defer h.metrics.RequestsInFlight.Dec()
		}

		next.ServeHTTP(ww, r)

		elapsed := time.Since(started)
		h.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", elapsed).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")

		if h.metrics != nil {
			h.metrics.RequestDuration.WithLabelValues(
				r.Method, routePattern(r), statusLabel(ww.Status()),
			).Observe(elapsed.Seconds())
		}
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
