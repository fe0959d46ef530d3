package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/docpilot/metergate/domain/period"
	"github.com/docpilot/metergate/domain/plan"
	"github.com/docpilot/metergate/domain/quota"
	"github.com/docpilot/metergate/ports"
)

// AccountService serves the dashboard's account reads: usage status,
// profile, and the billing portal handoff. It also provisions customer
// records on first contact, since identity lives with the external
// login provider and customers appear here only when they show up.
type AccountService struct {
	customers ports.CustomerStore
	quotas    ports.QuotaStore
	billing   ports.BillingProvider
	plans     *PlanTable
	clock     ports.Clock
	log       zerolog.Logger

	defaultPlanID string
}

// AccountDeps contains dependencies for AccountService.
type AccountDeps struct {
	Customers     ports.CustomerStore
	Quotas        ports.QuotaStore
	Billing       ports.BillingProvider
	Plans         *PlanTable
	Clock         ports.Clock
	DefaultPlanID string
	Logger        zerolog.Logger
}

// NewAccountService creates a new account service.
func NewAccountService(deps AccountDeps) *AccountService {
	defaultPlan := deps.DefaultPlanID
	if defaultPlan == "" {
		defaultPlan = "free"
	}
	return &AccountService{
		customers:     deps.Customers,
		quotas:        deps.Quotas,
		billing:       deps.Billing,
		plans:         deps.Plans,
		clock:         deps.Clock,
		defaultPlanID: defaultPlan,
		log:           deps.Logger,
	}
}

// UsageStatus is the current-period quota position of a customer.
type UsageStatus struct {
	PlanID            string
	MonthlyQuota      int64 // -1 = unlimited
	RequestsThisMonth int64
	QuotaRemaining    int64 // -1 = unlimited
	PeriodStart       time.Time
	PeriodEnd         time.Time
}

// Profile is the account view the dashboard renders.
type Profile struct {
	CustomerID   string
	Email        string
	Name         string
	PlanID       string
	PlanName     string
	MonthlyQuota int64
	MaxKeys      int
	AnchorDay    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Ensure returns the customer record for an identity subject, creating
// a default-plan record on first sight. The billing anchor day is the
// day-of-month of this first contact and never moves afterwards.
func (s *AccountService) Ensure(ctx context.Context, subject, email, name string) (ports.Customer, error) {
	cust, err := s.customers.Get(ctx, subject)
	if err == nil {
		return cust, nil
	}
	if !errors.Is(err, ports.ErrNotFound) {
		return ports.Customer{}, fmt.Errorf("get customer: %w", err)
	}

	now := s.clock.Now()
	cust = ports.Customer{
		ID:        subject,
		Email:     email,
		Name:      name,
		PlanID:    s.defaultPlanID,
		AnchorDay: now.UTC().Day(),
		Status:    "active",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.customers.Create(ctx, cust); err != nil {
		// Two concurrent first requests race on Create; the loser reads
		// the winner's record.
		if existing, getErr := s.customers.Get(ctx, subject); getErr == nil {
			return existing, nil
		}
		return ports.Customer{}, fmt.Errorf("create customer: %w", err)
	}

	s.log.Info().
		Str("customer_id", subject).
		Str("plan_id", s.defaultPlanID).
		Int("anchor_day", cust.AnchorDay).
		Msg("customer provisioned")
	return cust, nil
}

// Usage returns the customer's quota position for the current period.
func (s *AccountService) Usage(ctx context.Context, customerID string) (UsageStatus, error) {
	cust, err := s.customers.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return UsageStatus{}, ErrNotFound
		}
		return UsageStatus{}, fmt.Errorf("get customer: %w", err)
	}

	ceiling, ok := plan.QuotaFor(s.plans.Get(), cust.PlanID)
	if !ok {
		return UsageStatus{}, fmt.Errorf("customer %s: %w: %s", cust.ID, ErrUnknownPlan, cust.PlanID)
	}

	per := period.Current(cust.AnchorDay, s.clock.Now())
	count, err := s.quotas.Count(ctx, cust.ID, per.Start)
	if err != nil {
		return UsageStatus{}, fmt.Errorf("quota count: %w", err)
	}

	return UsageStatus{
		PlanID:            cust.PlanID,
		MonthlyQuota:      ceiling,
		RequestsThisMonth: count,
		QuotaRemaining:    quota.Remaining(count, ceiling),
		PeriodStart:       per.Start,
		PeriodEnd:         per.End,
	}, nil
}

// Profile returns the account profile.
func (s *AccountService) Profile(ctx context.Context, customerID string) (Profile, error) {
	cust, err := s.customers.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("get customer: %w", err)
	}

	p, ok := plan.Find(s.plans.Get(), cust.PlanID)
	if !ok {
		return Profile{}, fmt.Errorf("customer %s: %w: %s", cust.ID, ErrUnknownPlan, cust.PlanID)
	}

	return Profile{
		CustomerID:   cust.ID,
		Email:        cust.Email,
		Name:         cust.Name,
		PlanID:       p.ID,
		PlanName:     p.Name,
		MonthlyQuota: p.RequestsPerMonth,
		MaxKeys:      p.MaxKeys,
		AnchorDay:    cust.AnchorDay,
		CreatedAt:    cust.CreatedAt,
		UpdatedAt:    cust.UpdatedAt,
	}, nil
}

// BillingPortal creates a billing-portal session for the customer,
// lazily creating the billing-processor customer on first use.
func (s *AccountService) BillingPortal(ctx context.Context, customerID, returnURL string) (string, error) {
	cust, err := s.customers.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get customer: %w", err)
	}

	if cust.BillingRef == "" {
		ref, err := s.billing.CreateCustomer(ctx, cust.Email, cust.Name, cust.ID)
		if err != nil {
			return "", fmt.Errorf("create billing customer: %w", err)
		}
		cust.BillingRef = ref
		cust.UpdatedAt = s.clock.Now()
		if err := s.customers.Update(ctx, cust); err != nil {
			return "", fmt.Errorf("save billing ref: %w", err)
		}
	}

	url, err := s.billing.CreatePortalSession(ctx, cust.BillingRef, returnURL)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}
	return url, nil
}
