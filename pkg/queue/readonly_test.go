package queue

import (
	"context"
	"testing"
	"time"

	"github.com/scrapeworks/orchestrator/pkg/model"
)

func TestReadOnlyQueueStorageRejectsMutations(t *testing.T) {
	inner := NewMemoryStorage()
	ro := NewReadOnlyQueueStorage(inner)
	ctx := context.Background()

	if _, err := ro.EnqueueTask(ctx, model.Task{Name: "x"}); err != model.ErrStorageIsReadOnly {
		t.Fatalf("EnqueueTask: want ErrStorageIsReadOnly, got %v", err)
	}
	if _, _, err := ro.DequeueTask(ctx); err != model.ErrStorageIsReadOnly {
		t.Fatalf("DequeueTask: want ErrStorageIsReadOnly, got %v", err)
	}
	if _, err := ro.UpdateTask(ctx, model.Task{ID: 1}); err != model.ErrStorageIsReadOnly {
		t.Fatalf("UpdateTask: want ErrStorageIsReadOnly, got %v", err)
	}
	if err := ro.DeleteOldTasks(ctx, 10); err != model.ErrStorageIsReadOnly {
		t.Fatalf("DeleteOldTasks: want ErrStorageIsReadOnly, got %v", err)
	}
}

func TestReadOnlyQueueStorageDelegatesReads(t *testing.T) {
	inner := NewMemoryStorage()
	ctx := context.Background()

	task, err := inner.EnqueueTask(ctx, model.Task{Name: "crawl-site", Priority: model.PriorityNormal, CreatedAt: time.Now()})
	if err != nil {
		t.Fatalf("seed enqueue: %v", err)
	}

	ro := NewReadOnlyQueueStorage(inner)

	if n, err := ro.GetQueueLen(ctx); err != nil || n != 1 {
		t.Fatalf("GetQueueLen: want 1, got %d (err=%v)", n, err)
	}
	if got, err := ro.GetTaskInstance(ctx, task.ID); err != nil || got.ID != task.ID {
		t.Fatalf("GetTaskInstance: want id %d, got %+v (err=%v)", task.ID, got, err)
	}
	if got, err := ro.GetTaskInstances(ctx, "crawl-site"); err != nil || len(got) != 1 {
		t.Fatalf("GetTaskInstances: want 1 instance, got %d (err=%v)", len(got), err)
	}
	if got, err := ro.GetTasks(ctx); err != nil || len(got) != 1 {
		t.Fatalf("GetTasks: want 1 task, got %d (err=%v)", len(got), err)
	}
}
