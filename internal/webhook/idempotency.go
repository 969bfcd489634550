package webhook

import (
	"context"
	"sync"
	"time"
)

// IdempotencyStore records webhook delivery identifiers with first-seen
// semantics. RecordIfNew must be a single atomic check-and-set: concurrent
// duplicate deliveries of the same event must observe exactly one "first".
// Records expire after the retention window; a replay after expiry is
// treated as first again, which is safe because signature verification
// gates every delivery independently.
type IdempotencyStore interface {
	// RecordIfNew returns true if (provider, deliveryID) has not been seen
	// within the retention window, recording it in the same operation. A
	// store error means delivery acceptance must fail closed.
	RecordIfNew(ctx context.Context, provider, deliveryID string) (bool, error)
}

// MemoryStore is an in-process IdempotencyStore with TTL cleanup. It only
// deduplicates within one process, so it is suitable for tests and
// single-instance development, not production.
type MemoryStore struct {
	ttl   time.Duration
	mu    sync.Mutex
	seen  map[string]time.Time
	clock func() time.Time
}

// NewMemoryStore creates a MemoryStore with the given retention window.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:   ttl,
		seen:  make(map[string]time.Time),
		clock: time.Now,
	}
}

// RecordIfNew implements IdempotencyStore.
func (m *MemoryStore) RecordIfNew(ctx context.Context, provider, deliveryID string) (bool, error) {
	key := provider + ":" + deliveryID
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, exp := range m.seen {
		if now.After(exp) {
			delete(m.seen, k)
		}
	}
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = now.Add(m.ttl)
	return true, nil
}
