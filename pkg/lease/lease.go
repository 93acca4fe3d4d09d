// Package lease implements the leader-election primitive the scheduler uses
// to ensure at most one replica ticks periodic tasks at a time: a named,
// TTL-bound, compare-and-set lease with two interchangeable backends.
package lease

import (
	"context"
	"time"

	"github.com/scrapeworks/orchestrator/pkg/model"
)

// Storage is the persistence contract both lease backends satisfy.
type Storage interface {
	// MaybeAcquire grants name to owner for dur if no lease is currently
	// held, the existing lease has expired, or it is already held by
	// owner (renewal). Returns (lease, true, nil) on success and
	// (zero, false, nil) if another owner currently holds it.
	MaybeAcquire(ctx context.Context, name, owner string, dur time.Duration) (model.Lease, bool, error)

	// Release gives name up, but only if currently held by owner.
	Release(ctx context.Context, name, owner string) error
}
