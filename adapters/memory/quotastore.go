package memory

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/docpilot/metergate/domain/quota"
	"github.com/docpilot/metergate/ports"
)

// quotaShard is a single shard of the quota store.
type quotaShard struct {
	mu       sync.Mutex
	counters map[string]int64 // by customerID|periodStart
}

// QuotaStore is a sharded in-memory implementation of ports.QuotaStore.
//
// Counters are sharded by customer id so the check-and-increment for one
// customer never blocks another. Within a shard the counter read, the
// admission decision and the increment happen under one lock, which is
// what makes overshoot impossible under concurrency.
type QuotaStore struct {
	shards    []*quotaShard
	numShards int
}

// NewQuotaStore creates a new sharded in-memory quota store.
func NewQuotaStore() *QuotaStore {
	const numShards = 32
	s := &QuotaStore{
		shards:    make([]*quotaShard, numShards),
		numShards: numShards,
	}
	for i := range s.shards {
		s.shards[i] = &quotaShard{counters: make(map[string]int64)}
	}
	return s
}

func (s *QuotaStore) getShard(customerID string) *quotaShard {
	h := fnv.New32a()
	h.Write([]byte(customerID))
	return s.shards[h.Sum32()%uint32(s.numShards)]
}

func counterKey(customerID string, periodStart time.Time) string {
	return customerID + "|" + periodStart.UTC().Format(time.RFC3339)
}

// Admit atomically increments the counter iff it is below ceiling.
func (s *QuotaStore) Admit(ctx context.Context, customerID string, periodStart time.Time, ceiling int64) (quota.Decision, error) {
	shard := s.getShard(customerID)
	ck := counterKey(customerID, periodStart)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	decision := quota.Evaluate(shard.counters[ck], ceiling)
	if decision.Admitted {
		shard.counters[ck] = decision.Count
	}
	return decision, nil
}

// Count returns the admitted count for a period (0 if absent).
func (s *QuotaStore) Count(ctx context.Context, customerID string, periodStart time.Time) (int64, error) {
	shard := s.getShard(customerID)

	shard.mu.Lock()
	defer shard.mu.Unlock()
	return shard.counters[counterKey(customerID, periodStart)], nil
}

// Sync overwrites the counter from a ledger recount.
func (s *QuotaStore) Sync(ctx context.Context, customerID string, periodStart time.Time, count int64) error {
	shard := s.getShard(customerID)

	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.counters[counterKey(customerID, periodStart)] = count
	return nil
}

var _ ports.QuotaStore = (*QuotaStore)(nil)
