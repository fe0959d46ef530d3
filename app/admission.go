package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/docpilot/metergate/domain/key"
	"github.com/docpilot/metergate/domain/period"
	"github.com/docpilot/metergate/domain/plan"
	"github.com/docpilot/metergate/domain/quota"
	"github.com/docpilot/metergate/domain/usage"
	"github.com/docpilot/metergate/ports"
)

// AdmissionService decides whether a product request may proceed:
// authenticate the key, resolve the customer's plan and billing period,
// then atomically check-and-increment the period counter.
type AdmissionService struct {
	keys      ports.KeyStore
	customers ports.CustomerStore
	quotas    ports.QuotaStore
	recorder  ports.UsageRecorder
	hasher    ports.Hasher
	clock     ports.Clock
	idGen     ports.IDGenerator
	plans     *PlanTable
	keyPrefix string
	log       zerolog.Logger
}

// AdmissionDeps contains dependencies for AdmissionService.
type AdmissionDeps struct {
	Keys      ports.KeyStore
	Customers ports.CustomerStore
	Quotas    ports.QuotaStore
	Recorder  ports.UsageRecorder
	Hasher    ports.Hasher
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Plans     *PlanTable
	KeyPrefix string
	Logger    zerolog.Logger
}

// NewAdmissionService creates a new admission service.
func NewAdmissionService(deps AdmissionDeps) *AdmissionService {
	return &AdmissionService{
		keys:      deps.Keys,
		customers: deps.Customers,
		quotas:    deps.Quotas,
		recorder:  deps.Recorder,
		hasher:    deps.Hasher,
		clock:     deps.Clock,
		idGen:     deps.IDGen,
		plans:     deps.Plans,
		keyPrefix: deps.KeyPrefix,
		log:       deps.Logger,
	}
}

// Admission is the context of an admitted request. Handlers carry it
// through the product call and hand it back to RecordAdmitted.
type Admission struct {
	KeyID      string
	CustomerID string
	PlanID     string
	Decision   quota.Decision
	Period     period.Period
}

// Admit runs the admission pipeline for one product request.
//
// The counter increments before the product call, so a request that
// later fails upstream still consumed quota. Returns ErrAuth for every
// authentication failure and ErrQuotaExceeded when the period ceiling is
// spent; both are recorded in the ledger before returning.
func (s *AdmissionService) Admit(ctx context.Context, rawKey, resource string) (Admission, error) {
	now := s.clock.Now()

	// 1. Validate key format (PURE)
	prefix, valid := key.ValidateFormat(rawKey, s.keyPrefix)
	if !valid {
		s.recordRejection("", "", resource, usage.OutcomeRejectedAuth)
		return Admission{}, ErrAuth
	}

	// 2. Lookup candidate keys by prefix (I/O)
	candidates, err := s.keys.Get(ctx, prefix)
	if err != nil && !errors.Is(err, ports.ErrNotFound) {
		return Admission{}, fmt.Errorf("lookup key: %w", err)
	}

	// 3. Find the matching key by hash comparison
	var matched key.Key
	found := false
	for _, k := range candidates {
		if s.hasher.Compare(k.Hash, rawKey) {
			matched = k
			found = true
			break
		}
	}
	if !found {
		s.recordRejection("", "", resource, usage.OutcomeRejectedAuth)
		return Admission{}, ErrAuth
	}

	// 4. Validate key state (PURE). Revoked keys fail exactly like
	// unknown ones.
	validation := key.Validate(matched, now)
	if !validation.Valid {
		s.recordRejection(matched.ID, matched.CustomerID, resource, usage.OutcomeRejectedAuth)
		return Admission{}, ErrAuth
	}

	// 5. Resolve the customer (I/O)
	cust, err := s.customers.Get(ctx, matched.CustomerID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			s.recordRejection(matched.ID, matched.CustomerID, resource, usage.OutcomeRejectedAuth)
			return Admission{}, ErrAuth
		}
		return Admission{}, fmt.Errorf("get customer: %w", err)
	}
	if cust.Status != "active" {
		s.recordRejection(matched.ID, cust.ID, resource, usage.OutcomeRejectedAuth)
		return Admission{}, ErrAuth
	}

	// 6. Resolve plan ceiling and billing period (PURE)
	ceiling, ok := plan.QuotaFor(s.plans.Get(), cust.PlanID)
	if !ok {
		// A customer pointing at a plan missing from the table is an
		// operator error. Fail closed rather than guess a ceiling.
		s.log.Error().
			Str("customer_id", cust.ID).
			Str("plan_id", cust.PlanID).
			Msg("customer plan missing from plan table, rejecting")
		s.recordRejection(matched.ID, cust.ID, resource, usage.OutcomeRejectedQuota)
		return Admission{}, ErrQuotaExceeded
	}
	per := period.Current(cust.AnchorDay, now)

	// 7. Atomic check-and-increment (I/O). This is the only step that
	// serializes concurrent requests, and only per customer.
	decision, err := s.quotas.Admit(ctx, cust.ID, per.Start, ceiling)
	if err != nil {
		return Admission{}, fmt.Errorf("quota admit: %w", err)
	}

	adm := Admission{
		KeyID:      matched.ID,
		CustomerID: cust.ID,
		PlanID:     cust.PlanID,
		Decision:   decision,
		Period:     per,
	}

	if !decision.Admitted {
		s.recordRejection(matched.ID, cust.ID, resource, usage.OutcomeRejectedQuota)
		return adm, ErrQuotaExceeded
	}

	// 8. Touch last-used off the hot path. Losing an update is fine.
	go func() {
		if err := s.keys.UpdateLastUsed(context.Background(), matched.ID, now); err != nil {
			s.log.Debug().Err(err).Str("key_id", matched.ID).Msg("last-used update failed")
		}
	}()

	return adm, nil
}

// RecordAdmitted appends the ledger event for an admitted request after
// the product call finished. Latency is the upstream latency; the event
// counts against the period the admission resolved regardless of the
// upstream outcome.
func (s *AdmissionService) RecordAdmitted(adm Admission, resource string, latencyMs int64) {
	s.recorder.Record(usage.Event{
		ID:         s.idGen.New(),
		KeyID:      adm.KeyID,
		CustomerID: adm.CustomerID,
		Resource:   resource,
		LatencyMs:  latencyMs,
		Outcome:    usage.OutcomeAdmitted,
		Timestamp:  s.clock.Now(),
	})
}

func (s *AdmissionService) recordRejection(keyID, customerID, resource string, outcome usage.Outcome) {
	s.recorder.Record(usage.Event{
		ID:         s.idGen.New(),
		KeyID:      keyID,
		CustomerID: customerID,
		Resource:   resource,
		Outcome:    outcome,
		Timestamp:  s.clock.Now(),
	})
}
