package lease

import (
	"context"
	"sync"
	"time"

	"github.com/scrapeworks/orchestrator/pkg/model"
)

// MemoryStorage is the in-process lease backend: a single mutex guarding a
// map of name to the currently held lease. Correct within one process only
// — every scheduler replica sharing a MemoryStorage is, by construction,
// the same process, so this backend is for single-replica deployments and
// tests.
type MemoryStorage struct {
	mu     sync.Mutex
	leases map[string]model.Lease
}

// NewMemoryStorage returns an empty in-process lease backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{leases: make(map[string]model.Lease)}
}

func (m *MemoryStorage) MaybeAcquire(ctx context.Context, name, owner string, dur time.Duration) (model.Lease, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	existing, held := m.leases[name]
	canAcquire := !held || existing.AcquiredUntil.Before(now) || existing.OwnerID == owner
	if !canAcquire {
		return model.Lease{}, false, nil
	}

	acquired := model.Lease{
		Name:          name,
		OwnerID:       owner,
		AcquiredAt:    now,
		AcquiredUntil: now.Add(dur),
	}
	m.leases[name] = acquired
	return acquired, true, nil
}

func (m *MemoryStorage) Release(ctx context.Context, name, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.leases[name]; ok && existing.OwnerID == owner {
		delete(m.leases, name)
	}
	return nil
}
