package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/docpilot/metergate/adapters/clock"
	"github.com/docpilot/metergate/adapters/hasher"
	"github.com/docpilot/metergate/adapters/idgen"
	"github.com/docpilot/metergate/adapters/memory"
	"github.com/docpilot/metergate/app"
	"github.com/docpilot/metergate/domain/plan"
	"github.com/docpilot/metergate/domain/usage"
	"github.com/docpilot/metergate/ports"
)

// syncRecorder writes ledger events straight through, no batching.
type syncRecorder struct {
	mu    sync.Mutex
	store ports.UsageStore
	clock ports.Clock
}

func (r *syncRecorder) Record(e usage.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store.RecordBatch(context.Background(), []usage.Event{e})
}

func (r *syncRecorder) Flush(ctx context.Context) error { return nil }
func (r *syncRecorder) Close() error                    { return nil }

// fakeDocs is a canned documentation upstream.
type fakeDocs struct {
	body   []byte
	status int
	err    error
}

func (d *fakeDocs) Search(ctx context.Context, query, library string) ([]byte, int, int64, error) {
	if d.err != nil {
		return nil, 0, 5, d.err
	}
	return d.body, d.status, 12, nil
}

type testServer struct {
	router    http.Handler
	keys      *memory.KeyStore
	customers *memory.CustomerStore
	quotas    *memory.QuotaStore
	usage     *memory.UsageStore
	clock     *clock.Fake
	docs      *fakeDocs
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		keys:      memory.NewKeyStore(),
		customers: memory.NewCustomerStore(),
		quotas:    memory.NewQuotaStore(),
		usage:     memory.NewUsageStore(),
		clock:     clock.NewFake(time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)),
		docs:      &fakeDocs{body: []byte(`{"results":[]}`), status: http.StatusOK},
	}
	changes := memory.NewPlanChangeStore()
	plans := app.NewPlanTable(plan.Defaults())
	recorder := &syncRecorder{store: ts.usage, clock: ts.clock}
	ids := idgen.NewSequential("id_")
	log := zerolog.Nop()

	admission := app.NewAdmissionService(app.AdmissionDeps{
		Keys:      ts.keys,
		Customers: ts.customers,
		Quotas:    ts.quotas,
		Recorder:  recorder,
		Hasher:    hasher.Fake{},
		Clock:     ts.clock,
		IDGen:     ids,
		Plans:     plans,
		KeyPrefix: "dk_",
		Logger:    log,
	})
	keySvc := app.NewKeyService(app.KeyDeps{
		Keys:      ts.keys,
		Customers: ts.customers,
		Usage:     ts.usage,
		Hasher:    hasher.Fake{},
		Clock:     ts.clock,
		IDGen:     ids,
		Plans:     plans,
		KeyPrefix: "dk_",
		Logger:    log,
	})
	account := app.NewAccountService(app.AccountDeps{
		Customers:     ts.customers,
		Quotas:        ts.quotas,
		Billing:       &stubBilling{},
		Plans:         plans,
		Clock:         ts.clock,
		DefaultPlanID: "free",
		Logger:        log,
	})
	analytics := app.NewAnalyticsService(app.AnalyticsDeps{
		Usage:  ts.usage,
		Clock:  ts.clock,
		Logger: log,
	})
	plansync := app.NewPlanSyncService(app.PlanSyncDeps{
		Customers: ts.customers,
		Changes:   changes,
		Plans:     plans,
		Clock:     ts.clock,
		IDGen:     ids,
		Logger:    log,
	})
	webhooks := app.NewWebhookService(app.WebhookDeps{
		Provider:      &stubBilling{},
		Customers:     ts.customers,
		Sync:          plansync,
		Plans:         plans,
		Clock:         ts.clock,
		DefaultPlanID: "free",
		Logger:        log,
	})

	h := NewHandler(Deps{
		Admission:     admission,
		Keys:          keySvc,
		Account:       account,
		Analytics:     analytics,
		PlanSync:      plansync,
		Webhooks:      webhooks,
		Docs:          ts.docs,
		Logger:        log,
		GenericSecret: "hook-secret",
	})
	ts.router = h.Router(nil)
	return ts
}

// stubBilling satisfies ports.BillingProvider for wiring; web tests hit
// the generic webhook path, not the provider one.
type stubBilling struct{}

func (stubBilling) Name() string { return "stub" }
func (stubBilling) CreateCustomer(ctx context.Context, email, name, customerID string) (string, error) {
	return "bil_stub", nil
}
func (stubBilling) CreatePortalSession(ctx context.Context, billingRef, returnURL string) (string, error) {
	return "https://billing.example.com/session", nil
}
func (stubBilling) ParseWebhook(payload []byte, signature string) (string, string, map[string]any, error) {
	return "", "", nil, fmt.Errorf("not implemented")
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// createKey provisions a customer via the dashboard and mints a key,
// returning the one-time secret.
func (ts *testServer) createKey(t *testing.T, subject string) string {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/v1/keys", map[string]string{"name": "test"},
		map[string]string{"X-Subject-ID": subject})
	if w.Code != http.StatusCreated {
		t.Fatalf("create key status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Key
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestSearchRequiresKey(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/search?q=hooks", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/v1/search?q=hooks", nil,
		map[string]string{"X-API-Key": "dk_" + strings.Repeat("0", 64)})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unknown key status = %d, want 401", w.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Error.Code != "invalid_key" {
		t.Errorf("error code = %q", body.Error.Code)
	}
}

func TestSearch(t *testing.T) {
	ts := newTestServer(t)
	rawKey := ts.createKey(t, "sub_1")

	w := ts.do(t, http.MethodGet, "/v1/search?q=hooks&library=react", nil,
		map[string]string{"X-API-Key": rawKey})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != `{"results":[]}` {
		t.Errorf("body = %s", w.Body.String())
	}
	if got := w.Header().Get("X-Quota-Limit"); got != "100" {
		t.Errorf("X-Quota-Limit = %q, want 100", got)
	}
	if got := w.Header().Get("X-Quota-Remaining"); got != "99" {
		t.Errorf("X-Quota-Remaining = %q, want 99", got)
	}
}

func TestSearchBearerToken(t *testing.T) {
	ts := newTestServer(t)
	rawKey := ts.createKey(t, "sub_1")

	w := ts.do(t, http.MethodGet, "/v1/search?q=hooks", nil,
		map[string]string{"Authorization": "Bearer " + rawKey})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	ts := newTestServer(t)
	rawKey := ts.createKey(t, "sub_1")

	w := ts.do(t, http.MethodGet, "/v1/search", nil,
		map[string]string{"X-API-Key": rawKey})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSearchQuotaExceeded(t *testing.T) {
	ts := newTestServer(t)
	rawKey := ts.createKey(t, "sub_1")

	// Free plan: 100 requests per period.
	for i := 0; i < 100; i++ {
		w := ts.do(t, http.MethodGet, "/v1/search?q=hooks", nil,
			map[string]string{"X-API-Key": rawKey})
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}

	w := ts.do(t, http.MethodGet, "/v1/search?q=hooks", nil,
		map[string]string{"X-API-Key": rawKey})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("X-Quota-Remaining"); got != "0" {
		t.Errorf("X-Quota-Remaining = %q, want 0", got)
	}
}

func TestSearchUpstreamFailureConsumesQuota(t *testing.T) {
	ts := newTestServer(t)
	rawKey := ts.createKey(t, "sub_1")
	ts.docs.err = fmt.Errorf("connection refused")

	w := ts.do(t, http.MethodGet, "/v1/search?q=hooks", nil,
		map[string]string{"X-API-Key": rawKey})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}

	count, _ := ts.quotas.Count(context.Background(), "sub_1",
		time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC))
	if count != 1 {
		t.Errorf("quota count = %d, want 1 (admission precedes upstream)", count)
	}
}

func TestCreateKeySecretShownOnce(t *testing.T) {
	ts := newTestServer(t)
	rawKey := ts.createKey(t, "sub_1")

	if !strings.HasPrefix(rawKey, "dk_") {
		t.Errorf("secret = %q", rawKey)
	}

	// The list never carries the secret.
	w := ts.do(t, http.MethodGet, "/v1/keys", nil,
		map[string]string{"X-Subject-ID": "sub_1"})
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	if strings.Contains(w.Body.String(), rawKey) {
		t.Error("full secret leaked in key listing")
	}
	if !strings.Contains(w.Body.String(), rawKey[:12]) {
		t.Error("listing should include the display prefix")
	}
}

func TestRevokeKeyImmediate(t *testing.T) {
	ts := newTestServer(t)
	rawKey := ts.createKey(t, "sub_1")

	w := ts.do(t, http.MethodGet, "/v1/keys", nil,
		map[string]string{"X-Subject-ID": "sub_1"})
	var list struct {
		Keys []struct {
			ID string `json:"id"`
		} `json:"keys"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Keys) != 1 {
		t.Fatalf("listed %d keys", len(list.Keys))
	}

	w = ts.do(t, http.MethodDelete, "/v1/keys/"+list.Keys[0].ID, nil,
		map[string]string{"X-Subject-ID": "sub_1"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("revoke status = %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/v1/search?q=hooks", nil,
		map[string]string{"X-API-Key": rawKey})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("revoked key status = %d, want 401", w.Code)
	}
}

func TestRevokeForeignKey(t *testing.T) {
	ts := newTestServer(t)
	ts.createKey(t, "sub_1")

	w := ts.do(t, http.MethodGet, "/v1/keys", nil,
		map[string]string{"X-Subject-ID": "sub_1"})
	var list struct {
		Keys []struct {
			ID string `json:"id"`
		} `json:"keys"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)

	w = ts.do(t, http.MethodDelete, "/v1/keys/"+list.Keys[0].ID, nil,
		map[string]string{"X-Subject-ID": "sub_other"})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestKeyLimit(t *testing.T) {
	ts := newTestServer(t)

	// Free plan allows 2 keys.
	ts.createKey(t, "sub_1")
	ts.createKey(t, "sub_1")

	w := ts.do(t, http.MethodPost, "/v1/keys", map[string]string{"name": "third"},
		map[string]string{"X-Subject-ID": "sub_1"})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestDashboardRequiresSubject(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/v1/keys", "/v1/usage", "/v1/analytics", "/v1/profile"} {
		w := ts.do(t, http.MethodGet, path, nil, nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s status = %d, want 401", path, w.Code)
		}
	}
}

func TestUsageEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rawKey := ts.createKey(t, "sub_1")

	for i := 0; i < 3; i++ {
		ts.do(t, http.MethodGet, "/v1/search?q=hooks", nil,
			map[string]string{"X-API-Key": rawKey})
	}

	w := ts.do(t, http.MethodGet, "/v1/usage", nil,
		map[string]string{"X-Subject-ID": "sub_1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Plan              string `json:"plan"`
		MonthlyQuota      int64  `json:"monthlyQuota"`
		RequestsThisMonth int64  `json:"requestsThisMonth"`
		QuotaRemaining    int64  `json:"quotaRemaining"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Plan != "free" || resp.MonthlyQuota != 100 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.RequestsThisMonth != 3 || resp.QuotaRemaining != 97 {
		t.Errorf("counts = %d used / %d remaining, want 3/97",
			resp.RequestsThisMonth, resp.QuotaRemaining)
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rawKey := ts.createKey(t, "sub_1")

	for i := 0; i < 2; i++ {
		ts.do(t, http.MethodGet, "/v1/search?q=hooks&library=react", nil,
			map[string]string{"X-API-Key": rawKey})
	}

	w := ts.do(t, http.MethodGet, "/v1/analytics?days=7", nil,
		map[string]string{"X-Subject-ID": "sub_1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Overview struct {
			TotalRequests int64 `json:"totalRequests"`
			Admitted      int64 `json:"admitted"`
		} `json:"overview"`
		TopResources []struct {
			Resource string `json:"resource"`
			Count    int64  `json:"count"`
		} `json:"topResources"`
		DailyUsage []struct {
			Day   string `json:"day"`
			Count int64  `json:"count"`
		} `json:"dailyUsage"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Overview.Admitted != 2 {
		t.Errorf("admitted = %d, want 2", resp.Overview.Admitted)
	}
	if len(resp.TopResources) != 1 || resp.TopResources[0].Resource != "react" {
		t.Errorf("top resources = %+v", resp.TopResources)
	}
	if len(resp.DailyUsage) != 7 {
		t.Errorf("daily buckets = %d, want 7", len(resp.DailyUsage))
	}
}

func TestGenericWebhook(t *testing.T) {
	ts := newTestServer(t)
	ts.createKey(t, "sub_1")

	n := map[string]any{
		"customerId":    "sub_1",
		"newPlan":       "pro",
		"sourceEventId": "evt_1",
		"timestamp":     "2026-08-15T12:00:00Z",
	}

	// Wrong secret.
	w := ts.do(t, http.MethodPost, "/webhooks/billing/generic", n,
		map[string]string{"X-Webhook-Secret": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret status = %d, want 401", w.Code)
	}

	// Correct secret applies the change.
	w = ts.do(t, http.MethodPost, "/webhooks/billing/generic", n,
		map[string]string{"X-Webhook-Secret": "hook-secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	cust, _ := ts.customers.Get(context.Background(), "sub_1")
	if cust.PlanID != "pro" {
		t.Errorf("plan = %q, want pro", cust.PlanID)
	}

	// Redelivery acks without reapplying.
	w = ts.do(t, http.MethodPost, "/webhooks/billing/generic", n,
		map[string]string{"X-Webhook-Secret": "hook-secret"})
	if w.Code != http.StatusOK {
		t.Errorf("redelivery status = %d", w.Code)
	}
}

func TestGenericWebhookUnknownPlanIgnored(t *testing.T) {
	ts := newTestServer(t)
	ts.createKey(t, "sub_1")

	w := ts.do(t, http.MethodPost, "/webhooks/billing/generic", map[string]any{
		"customerId":    "sub_1",
		"newPlan":       "vip",
		"sourceEventId": "evt_2",
	}, map[string]string{"X-Webhook-Secret": "hook-secret"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 ack", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ignored") {
		t.Errorf("body = %s, want ignored status", w.Body.String())
	}
	cust, _ := ts.customers.Get(context.Background(), "sub_1")
	if cust.PlanID != "free" {
		t.Errorf("plan = %q, want free", cust.PlanID)
	}
}

func TestProfileEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/v1/profile", nil, map[string]string{
		"X-Subject-ID":    "sub_1",
		"X-Subject-Email": "dev@example.com",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		CustomerID string `json:"customerId"`
		Email      string `json:"email"`
		Plan       string `json:"plan"`
		AnchorDay  int    `json:"anchorDay"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.CustomerID != "sub_1" || resp.Email != "dev@example.com" || resp.Plan != "free" {
		t.Errorf("profile = %+v", resp)
	}
	if resp.AnchorDay != 15 {
		t.Errorf("anchor day = %d, want 15 (first-contact day)", resp.AnchorDay)
	}
}
