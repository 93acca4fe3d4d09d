// Package queue implements the priority task queue: a logical Queue layer
// enforcing at-most-one-in-flight-per-name semantics, and two interchangeable
// QueueStorage backends (in-process and Redis) that share identical ordering
// and compare-and-set semantics.
package queue

import (
	"context"

	"github.com/scrapeworks/orchestrator/pkg/model"
)

// Storage is the persistence contract both backends satisfy. Ordering,
// error taxonomy and CAS-on-update semantics must be identical across
// implementations; only durability and scale characteristics differ.
type Storage interface {
	// EnqueueTask assigns a unique, strictly increasing ID, persists the
	// task and places it in the pending ordering.
	EnqueueTask(ctx context.Context, task model.Task) (model.Task, error)

	// DequeueTask atomically removes and returns the minimum-ordered
	// pending record by (priority, id), or (zero, false) if empty. It does
	// not change the task's status.
	DequeueTask(ctx context.Context) (model.Task, bool, error)

	// GetTaskInstance performs an exact lookup by ID.
	// Returns model.ErrTaskNotFound when absent.
	GetTaskInstance(ctx context.Context, id int64) (model.Task, error)

	// GetTaskInstances returns all tasks recorded under name, newest-id first.
	GetTaskInstances(ctx context.Context, name string) ([]model.Task, error)

	// GetTasks returns every recorded task, used by KillDeadTasks's scan.
	GetTasks(ctx context.Context) ([]model.Task, error)

	// UpdateTask persists a mutated record. Must reject silent creation:
	// returns model.ErrTaskNotFound if id is absent.
	UpdateTask(ctx context.Context, task model.Task) (model.Task, error)

	// GetQueueLen returns the count of currently pending records.
	GetQueueLen(ctx context.Context) (int, error)

	// DeleteOldTasks retains, per logical name, only the keepLast records
	// with the highest IDs; it never deletes a still-pending task.
	DeleteOldTasks(ctx context.Context, keepLast int) error
}
