package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/docpilot/metergate/domain/key"
	"github.com/docpilot/metergate/domain/period"
	"github.com/docpilot/metergate/domain/plan"
	"github.com/docpilot/metergate/ports"
)

// KeyService handles API key lifecycle: create, list, revoke.
type KeyService struct {
	keys      ports.KeyStore
	customers ports.CustomerStore
	usage     ports.UsageStore
	hasher    ports.Hasher
	clock     ports.Clock
	idGen     ports.IDGenerator
	plans     *PlanTable
	keyPrefix string
	log       zerolog.Logger
}

// KeyDeps contains dependencies for KeyService.
type KeyDeps struct {
	Keys      ports.KeyStore
	Customers ports.CustomerStore
	Usage     ports.UsageStore
	Hasher    ports.Hasher
	Clock     ports.Clock
	IDGen     ports.IDGenerator
	Plans     *PlanTable
	KeyPrefix string
	Logger    zerolog.Logger
}

// NewKeyService creates a new key service.
func NewKeyService(deps KeyDeps) *KeyService {
	return &KeyService{
		keys:      deps.Keys,
		customers: deps.Customers,
		usage:     deps.Usage,
		hasher:    deps.Hasher,
		clock:     deps.Clock,
		idGen:     deps.IDGen,
		plans:     deps.Plans,
		keyPrefix: deps.KeyPrefix,
		log:       deps.Logger,
	}
}

// CreatedKey is the one-time creation result. Plaintext carries the full
// secret and exists nowhere else: it is never persisted and never
// retrievable again.
type CreatedKey struct {
	Key       key.Key
	Plaintext string
}

// KeyInfo is a key plus its admitted request count for the current
// billing period, the shape the dashboard lists.
type KeyInfo struct {
	Key               key.Key
	RequestsThisMonth int64
}

// Create mints a new API key for a customer, enforcing the plan's
// active-key limit.
func (s *KeyService) Create(ctx context.Context, customerID, name string) (CreatedKey, error) {
	now := s.clock.Now()

	// 1. Resolve the customer and their plan (I/O + PURE)
	cust, err := s.customers.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return CreatedKey{}, ErrNotFound
		}
		return CreatedKey{}, fmt.Errorf("get customer: %w", err)
	}
	p, ok := plan.Find(s.plans.Get(), cust.PlanID)
	if !ok {
		return CreatedKey{}, fmt.Errorf("customer %s: %w: %s", cust.ID, ErrUnknownPlan, cust.PlanID)
	}

	// 2. Enforce the active-key limit (I/O)
	active, err := s.keys.CountActiveByCustomer(ctx, customerID)
	if err != nil {
		return CreatedKey{}, fmt.Errorf("count keys: %w", err)
	}
	if p.MaxKeys > 0 && active >= p.MaxKeys {
		return CreatedKey{}, ErrKeyLimitReached
	}

	// 3. Mint the secret and hash it (PURE + crypto)
	raw, prefix := key.NewSecret(s.keyPrefix)
	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return CreatedKey{}, fmt.Errorf("hash key: %w", err)
	}

	k := key.Key{
		ID:         "key_" + s.idGen.New(),
		CustomerID: customerID,
		Hash:       hash,
		Prefix:     prefix,
		Name:       name,
		CreatedAt:  now,
	}

	// 4. Persist (I/O)
	if err := s.keys.Create(ctx, k); err != nil {
		return CreatedKey{}, fmt.Errorf("create key: %w", err)
	}

	s.log.Info().
		Str("key_id", k.ID).
		Str("customer_id", customerID).
		Str("prefix", k.Prefix).
		Msg("api key created")

	return CreatedKey{Key: k, Plaintext: raw}, nil
}

// List returns a customer's keys, newest first, each with its admitted
// count for the current billing period.
func (s *KeyService) List(ctx context.Context, customerID string) ([]KeyInfo, error) {
	cust, err := s.customers.Get(ctx, customerID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	keys, err := s.keys.ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	per := period.Current(cust.AnchorDay, s.clock.Now())
	counts, err := s.usage.CountAdmittedByKey(ctx, customerID, per.Start, per.End)
	if err != nil {
		return nil, fmt.Errorf("count usage: %w", err)
	}

	infos := make([]KeyInfo, len(keys))
	for i, k := range keys {
		infos[i] = KeyInfo{Key: k, RequestsThisMonth: counts[k.ID]}
	}
	return infos, nil
}

// Revoke marks a key as revoked. Revocation takes effect on the next
// admission attempt; there is no grace window. Revoking an already
// revoked key is a no-op.
func (s *KeyService) Revoke(ctx context.Context, customerID, keyID string) error {
	k, err := s.keys.GetByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get key: %w", err)
	}
	if k.CustomerID != customerID {
		return ErrForbidden
	}
	if !k.IsActive() {
		return nil
	}

	if err := s.keys.Revoke(ctx, keyID, s.clock.Now()); err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}

	s.log.Info().
		Str("key_id", keyID).
		Str("customer_id", customerID).
		Msg("api key revoked")
	return nil
}
