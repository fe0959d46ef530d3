package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/docpilot/metergate/domain/usage"
)

type usageResponse struct {
	Plan              string    `json:"plan"`
	MonthlyQuota      int64     `json:"monthlyQuota"`
	RequestsThisMonth int64     `json:"requestsThisMonth"`
	QuotaRemaining    int64     `json:"quotaRemaining"`
	PeriodStart       time.Time `json:"periodStart"`
	PeriodEnd         time.Time `json:"periodEnd"`
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	cust, ok := customerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Missing identity")
		return
	}

	status, err := h.account.Usage(r.Context(), cust.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, usageResponse{
		Plan:              status.PlanID,
		MonthlyQuota:      status.MonthlyQuota,
		RequestsThisMonth: status.RequestsThisMonth,
		QuotaRemaining:    status.QuotaRemaining,
		PeriodStart:       status.PeriodStart,
		PeriodEnd:         status.PeriodEnd,
	})
}

type analyticsResponse struct {
	Overview     overviewResponse   `json:"overview"`
	TopResources []resourceResponse `json:"topResources"`
	DailyUsage   []dayResponse      `json:"dailyUsage"`
	Performance  performanceBody    `json:"performance"`
	GeneratedAt  time.Time          `json:"generatedAt"`
}

type overviewResponse struct {
	WindowDays    int   `json:"windowDays"`
	TotalRequests int64 `json:"totalRequests"`
	Admitted      int64 `json:"admitted"`
	RejectedQuota int64 `json:"rejectedQuota"`
	RejectedAuth  int64 `json:"rejectedAuth"`
}

type resourceResponse struct {
	Resource   string    `json:"resource"`
	Count      int64     `json:"count"`
	Percent    float64   `json:"percent"`
	LastAccess time.Time `json:"lastAccess"`
}

type dayResponse struct {
	Day   string `json:"day"` // "2006-01-02"
	Count int64  `json:"count"`
}

type performanceBody struct {
	AverageMs float64 `json:"averageMs"`
	P95Ms     int64   `json:"p95Ms"`
	P99Ms     int64   `json:"p99Ms"`
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	cust, ok := customerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Missing identity")
		return
	}

	days := queryInt(r, "days", 7)
	report, err := h.analytics.Report(r.Context(), cust.ID, days)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resources := make([]resourceResponse, len(report.TopResources))
	for i, rc := range report.TopResources {
		resources[i] = resourceResponse(rc)
	}
	daily := make([]dayResponse, len(report.DailyUsage))
	for i, b := range report.DailyUsage {
		daily[i] = toDayResponse(b)
	}

	writeJSON(w, http.StatusOK, analyticsResponse{
		Overview: overviewResponse{
			WindowDays:    report.Overview.WindowDays,
			TotalRequests: report.Overview.TotalRequests,
			Admitted:      report.Overview.Admitted,
			RejectedQuota: report.Overview.RejectedQuota,
			RejectedAuth:  report.Overview.RejectedAuth,
		},
		TopResources: resources,
		DailyUsage:   daily,
		Performance: performanceBody{
			AverageMs: report.Performance.AverageMs,
			P95Ms:     report.Performance.P95Ms,
			P99Ms:     report.Performance.P99Ms,
		},
		GeneratedAt: report.GeneratedAt,
	})
}

func toDayResponse(b usage.DayBucket) dayResponse {
	return dayResponse{Day: b.Day.Format("2006-01-02"), Count: b.Count}
}

type profileResponse struct {
	CustomerID   string    `json:"customerId"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Plan         string    `json:"plan"`
	PlanName     string    `json:"planName"`
	MonthlyQuota int64     `json:"monthlyQuota"`
	MaxKeys      int       `json:"maxKeys"`
	AnchorDay    int       `json:"anchorDay"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	cust, ok := customerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Missing identity")
		return
	}

	profile, err := h.account.Profile(r.Context(), cust.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		CustomerID:   profile.CustomerID,
		Email:        profile.Email,
		Name:         profile.Name,
		Plan:         profile.PlanID,
		PlanName:     profile.PlanName,
		MonthlyQuota: profile.MonthlyQuota,
		MaxKeys:      profile.MaxKeys,
		AnchorDay:    profile.AnchorDay,
		CreatedAt:    profile.CreatedAt,
		UpdatedAt:    profile.UpdatedAt,
	})
}

type planChangeResponse struct {
	ID            string    `json:"id"`
	OldPlan       string    `json:"oldPlan"`
	NewPlan       string    `json:"newPlan"`
	SourceEventID string    `json:"sourceEventId"`
	EffectiveAt   time.Time `json:"effectiveAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (h *Handler) handlePlanChanges(w http.ResponseWriter, r *http.Request) {
	cust, ok := customerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Missing identity")
		return
	}

	changes, err := h.plansync.History(r.Context(), cust.ID, queryInt(r, "limit", 50))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]planChangeResponse, len(changes))
	for i, pc := range changes {
		out[i] = planChangeResponse{
			ID:            pc.ID,
			OldPlan:       pc.OldPlanID,
			NewPlan:       pc.NewPlanID,
			SourceEventID: pc.SourceEventID,
			EffectiveAt:   pc.EffectiveAt,
			CreatedAt:     pc.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"changes": out})
}

type portalRequest struct {
	ReturnURL string `json:"returnUrl"`
}

func (h *Handler) handleBillingPortal(w http.ResponseWriter, r *http.Request) {
	cust, ok := customerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "Missing identity")
		return
	}

	var req portalRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	url, err := h.account.BillingPortal(r.Context(), cust.ID, req.ReturnURL)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
