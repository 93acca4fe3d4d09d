package queue

import (
	"context"

	"github.com/scrapeworks/orchestrator/pkg/model"
)

// ReadOnlyQueueStorage wraps a Storage and rejects every mutation with
// model.ErrStorageIsReadOnly, for replicas that should observe the queue
// (admin listing, dashboards) without being able to perturb it.
type ReadOnlyQueueStorage struct {
	inner Storage
}

// NewReadOnlyQueueStorage wraps inner so all writes are rejected.
func NewReadOnlyQueueStorage(inner Storage) *ReadOnlyQueueStorage {
	return &ReadOnlyQueueStorage{inner: inner}
}

func (r *ReadOnlyQueueStorage) EnqueueTask(ctx context.Context, task model.Task) (model.Task, error) {
	return model.Task{}, model.ErrStorageIsReadOnly
}

func (r *ReadOnlyQueueStorage) DequeueTask(ctx context.Context) (model.Task, bool, error) {
	return model.Task{}, false, model.ErrStorageIsReadOnly
}

func (r *ReadOnlyQueueStorage) GetTaskInstance(ctx context.Context, id int64) (model.Task, error) {
	return r.inner.GetTaskInstance(ctx, id)
}

func (r *ReadOnlyQueueStorage) GetTaskInstances(ctx context.Context, name string) ([]model.Task, error) {
	return r.inner.GetTaskInstances(ctx, name)
}

func (r *ReadOnlyQueueStorage) GetTasks(ctx context.Context) ([]model.Task, error) {
	return r.inner.GetTasks(ctx)
}

func (r *ReadOnlyQueueStorage) UpdateTask(ctx context.Context, task model.Task) (model.Task, error) {
	return model.Task{}, model.ErrStorageIsReadOnly
}

func (r *ReadOnlyQueueStorage) GetQueueLen(ctx context.Context) (int, error) {
	return r.inner.GetQueueLen(ctx)
}

func (r *ReadOnlyQueueStorage) DeleteOldTasks(ctx context.Context, keepLast int) error {
	return model.ErrStorageIsReadOnly
}
