package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/docpilot/metergate/domain/billing"
	"github.com/docpilot/metergate/ports"
)

// PlanChangeStore is an in-memory implementation of ports.PlanChangeStore.
type PlanChangeStore struct {
	mu      sync.RWMutex
	byEvent map[string]billing.PlanChange // by SourceEventID
}

// NewPlanChangeStore creates a new in-memory plan change store.
func NewPlanChangeStore() *PlanChangeStore {
	return &PlanChangeStore{byEvent: make(map[string]billing.PlanChange)}
}

// Create stores a change record. The source event id is the uniqueness
// key, mirroring the sqlite unique index.
func (s *PlanChangeStore) Create(ctx context.Context, pc billing.PlanChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEvent[pc.SourceEventID]; exists {
		return ports.ErrDuplicateEvent
	}
	s.byEvent[pc.SourceEventID] = pc
	return nil
}

// GetBySourceEvent retrieves the record for a processor event id.
func (s *PlanChangeStore) GetBySourceEvent(ctx context.Context, sourceEventID string) (billing.PlanChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pc, ok := s.byEvent[sourceEventID]
	if !ok {
		return billing.PlanChange{}, ports.ErrNotFound
	}
	return pc, nil
}

// ListByCustomer returns a customer's change history, newest first.
func (s *PlanChangeStore) ListByCustomer(ctx context.Context, customerID string, limit int) ([]billing.PlanChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []billing.PlanChange
	for _, pc := range s.byEvent {
		if pc.CustomerID == customerID {
			result = append(result, pc)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ ports.PlanChangeStore = (*PlanChangeStore)(nil)
