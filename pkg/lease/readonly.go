package lease

import (
	"context"
	"time"

	"github.com/scrapeworks/orchestrator/pkg/model"
)

// ReadOnlyLeaseStorage wraps a Storage and rejects every call with
// model.ErrStorageIsReadOnly, for a standby replica that must observe
// leadership state without ever being able to win or renew it.
type ReadOnlyLeaseStorage struct {
	inner Storage
}

// NewReadOnlyLeaseStorage wraps inner so it can never acquire or release.
func NewReadOnlyLeaseStorage(inner Storage) *ReadOnlyLeaseStorage {
	return &ReadOnlyLeaseStorage{inner: inner}
}

func (r *ReadOnlyLeaseStorage) MaybeAcquire(ctx context.Context, name, owner string, dur time.Duration) (model.Lease, bool, error) {
	return model.Lease{}, false, model.ErrStorageIsReadOnly
}

func (r *ReadOnlyLeaseStorage) Release(ctx context.Context, name, owner string) error {
	return model.ErrStorageIsReadOnly
}
