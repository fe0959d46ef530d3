package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/docpilot/metergate/ports"
)

// CustomerStore is an in-memory implementation of ports.CustomerStore.
type CustomerStore struct {
	mu        sync.RWMutex
	customers map[string]ports.Customer // by ID
}

// NewCustomerStore creates a new in-memory customer store.
func NewCustomerStore() *CustomerStore {
	return &CustomerStore{customers: make(map[string]ports.Customer)}
}

// Get retrieves a customer by id.
func (s *CustomerStore) Get(ctx context.Context, id string) (ports.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return ports.Customer{}, ports.ErrNotFound
	}
	return c, nil
}

// GetByBillingRef retrieves a customer by billing processor reference.
func (s *CustomerStore) GetByBillingRef(ctx context.Context, ref string) (ports.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.customers {
		if c.BillingRef != "" && c.BillingRef == ref {
			return c, nil
		}
	}
	return ports.Customer{}, ports.ErrNotFound
}

// Create stores a new customer.
func (s *CustomerStore) Create(ctx context.Context, c ports.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[c.ID]; exists {
		return fmt.Errorf("customer %s already exists", c.ID)
	}
	s.customers[c.ID] = c
	return nil
}

// Update modifies an existing customer.
func (s *CustomerStore) Update(ctx context.Context, c ports.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[c.ID]; !exists {
		return ports.ErrNotFound
	}
	s.customers[c.ID] = c
	return nil
}

// List returns customers with pagination, oldest first.
func (s *CustomerStore) List(ctx context.Context, limit, offset int) ([]ports.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]ports.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

var _ ports.CustomerStore = (*CustomerStore)(nil)
