package integration_tests

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scrapeworks/orchestrator/pkg/model"
	"github.com/scrapeworks/orchestrator/pkg/queue"
)

// setupIntegrationQueue connects to a locally running Redis instance.
// Requires `go run ./cmd/devredis` (or a real Redis) listening on
// 127.0.0.1:6379.
func setupIntegrationQueue(t *testing.T) *queue.Queue {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("skipping integration test: redis not reachable at 127.0.0.1:6379 (%v)", err)
	}
	rdb.FlushDB(context.Background())

	return queue.New(queue.NewRedisStorage(rdb, queue.DefaultTaskTTL), queue.DefaultDeadTaskTimeout)
}

func TestIntegrationEnqueueDequeueComplete(t *testing.T) {
	q := setupIntegrationQueue(t)
	ctx := context.Background()

	enqueued, err := q.Enqueue(ctx, model.EnqueueRequest{
		Name:     "integration-task",
		Handler:  "noop",
		Priority: model.PriorityNormal,
		Payload:  `{"msg":"hello"}`,
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	started, ok, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if !ok {
		t.Fatalf("expected a task to dequeue")
	}
	if started.ID != enqueued.ID {
		t.Fatalf("expected id %d, got %d", enqueued.ID, started.ID)
	}
	if started.Status != model.StatusStarted {
		t.Fatalf("expected STARTED, got %s", started.Status)
	}

	started.Status = model.StatusSucceeded
	started.Result = "ok"
	if _, err := q.UpdateTask(ctx, started); err != nil {
		t.Fatalf("update task: %v", err)
	}

	if n, err := q.GetQueueLen(ctx); err != nil || n != 0 {
		t.Fatalf("expected empty pending queue, got %d (err=%v)", n, err)
	}
}

func TestIntegrationEnqueueRejectsConcurrentRun(t *testing.T) {
	q := setupIntegrationQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, model.EnqueueRequest{Name: "exclusive", Handler: "noop"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, model.EnqueueRequest{Name: "exclusive", Handler: "noop"}); err != model.ErrTaskHasActiveRun {
		t.Fatalf("expected ErrTaskHasActiveRun, got %v", err)
	}
}
