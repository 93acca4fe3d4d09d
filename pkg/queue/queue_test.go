package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/scrapeworks/orchestrator/pkg/model"
)

// backends returns one fresh Storage per supported implementation, so every
// test in this file runs identically against both.
func backends(t *testing.T) map[string]Storage {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return map[string]Storage{
		"memory": NewMemoryStorage(),
		"redis":  NewRedisStorage(rdb, time.Hour),
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, s Storage)) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, s)
		})
	}
}

func TestQueueEnqueueRejectsActiveRun(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		q := New(s, time.Hour)
		ctx := context.Background()

		if _, err := q.Enqueue(ctx, model.EnqueueRequest{Name: "crawl-site", Handler: "crawl"}); err != nil {
			t.Fatalf("first enqueue: %v", err)
		}
		_, err := q.Enqueue(ctx, model.EnqueueRequest{Name: "crawl-site", Handler: "crawl"})
		if err != model.ErrTaskHasActiveRun {
			t.Fatalf("want ErrTaskHasActiveRun, got %v", err)
		}
	})
}

func TestQueueEnqueueAllowedAfterTerminal(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		q := New(s, time.Hour)
		ctx := context.Background()

		first, err := q.Enqueue(ctx, model.EnqueueRequest{Name: "crawl-site", Handler: "crawl"})
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		first.Status = model.StatusSucceeded
		if _, err := q.UpdateTask(ctx, first); err != nil {
			t.Fatalf("update: %v", err)
		}
		if _, err := q.Enqueue(ctx, model.EnqueueRequest{Name: "crawl-site", Handler: "crawl"}); err != nil {
			t.Fatalf("re-enqueue after terminal: %v", err)
		}
	})
}

func TestQueueDequeueOrdersByPriorityThenFIFO(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		q := New(s, time.Hour)
		ctx := context.Background()

		low, _ := q.Enqueue(ctx, model.EnqueueRequest{Name: "a", Handler: "h", Priority: model.PriorityNormal})
		high, _ := q.Enqueue(ctx, model.EnqueueRequest{Name: "b", Handler: "h", Priority: model.PriorityHigh})
		utmost, _ := q.Enqueue(ctx, model.EnqueueRequest{Name: "c", Handler: "h", Priority: model.PriorityUtmost})
		secondNormal, _ := q.Enqueue(ctx, model.EnqueueRequest{Name: "d", Handler: "h", Priority: model.PriorityNormal})

		order := []int64{utmost.ID, high.ID, low.ID, secondNormal.ID}
		for _, want := range order {
			got, ok, err := q.Dequeue(ctx)
			if err != nil {
				t.Fatalf("dequeue: %v", err)
			}
			if !ok {
				t.Fatalf("want a task, queue empty")
			}
			if got.ID != want {
				t.Fatalf("want task %d, got %d", want, got.ID)
			}
			if got.Status != model.StatusStarted {
				t.Fatalf("dequeued task must be STARTED, got %s", got.Status)
			}
		}
		if _, ok, err := q.Dequeue(ctx); err != nil || ok {
			t.Fatalf("want empty queue, got ok=%v err=%v", ok, err)
		}
	})
}

func TestQueuePingTask(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		q := New(s, time.Hour)
		ctx := context.Background()

		pending, _ := q.Enqueue(ctx, model.EnqueueRequest{Name: "a", Handler: "h"})
		if _, err := q.PingTask(ctx, pending.ID); err != model.ErrTaskPingNotStarted {
			t.Fatalf("want ErrTaskPingNotStarted, got %v", err)
		}

		started, ok, err := q.Dequeue(ctx)
		if err != nil || !ok {
			t.Fatalf("dequeue: ok=%v err=%v", ok, err)
		}
		pinged, err := q.PingTask(ctx, started.ID)
		if err != nil {
			t.Fatalf("ping started task: %v", err)
		}
		if pinged.LastActiveAt == nil {
			t.Fatalf("ping must set LastActiveAt")
		}

		pinged.Status = model.StatusKilled
		if _, err := q.UpdateTask(ctx, pinged); err != nil {
			t.Fatalf("update to killed: %v", err)
		}
		if _, err := q.PingTask(ctx, started.ID); err != model.ErrTaskPingFinished {
			t.Fatalf("want ErrTaskPingFinished after kill, got %v", err)
		}
	})
}

func TestQueueKillDeadTasks(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		q := New(s, time.Millisecond)
		ctx := context.Background()

		task, _ := q.Enqueue(ctx, model.EnqueueRequest{Name: "stuck", Handler: "h"})
		started, ok, err := q.Dequeue(ctx)
		if err != nil || !ok {
			t.Fatalf("dequeue: ok=%v err=%v", ok, err)
		}
		if started.ID != task.ID {
			t.Fatalf("dequeued wrong task")
		}

		time.Sleep(5 * time.Millisecond)

		killed, err := q.KillDeadTasks(ctx)
		if err != nil {
			t.Fatalf("kill dead tasks: %v", err)
		}
		if len(killed) != 1 || killed[0].ID != task.ID {
			t.Fatalf("want task %d marked dead, got %+v", task.ID, killed)
		}
		if killed[0].Status != model.StatusDead {
			t.Fatalf("want status DEAD, got %s", killed[0].Status)
		}

		again, err := q.KillDeadTasks(ctx)
		if err != nil {
			t.Fatalf("second kill pass: %v", err)
		}
		if len(again) != 0 {
			t.Fatalf("dead task must not be re-killed, got %+v", again)
		}
	})
}

func TestQueueUpdateTaskRejectsUnknownID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		q := New(s, time.Hour)
		ctx := context.Background()

		_, err := q.UpdateTask(ctx, model.Task{ID: 999, Name: "ghost", Status: model.StatusStarted})
		if err != model.ErrTaskNotFound {
			t.Fatalf("want ErrTaskNotFound, got %v", err)
		}
	})
}

func TestQueueDeleteOldTasksKeepsPendingEvenBeyondKeepLast(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Storage) {
		q := New(s, time.Hour)
		ctx := context.Background()

		pending, err := q.Enqueue(ctx, model.EnqueueRequest{Name: "recurring", Handler: "h"})
		if err != nil {
			t.Fatalf("enqueue pending: %v", err)
		}

		var terminalIDs []int64
		for i := 0; i < 2; i++ {
			// Seeded through the storage directly: Queue.Enqueue rejects a
			// second "recurring" task while the first one is still PENDING.
			task, err := s.EnqueueTask(ctx, model.Task{Name: "recurring", Handler: "h", Status: model.StatusPending, CreatedAt: time.Now()})
			if err != nil {
				t.Fatalf("enqueue %d: %v", i, err)
			}
			terminalIDs = append(terminalIDs, task.ID)
			task.Status = model.StatusSucceeded
			if _, err := q.UpdateTask(ctx, task); err != nil {
				t.Fatalf("update %d: %v", i, err)
			}
		}

		if err := q.DeleteOldTasks(ctx, 1); err != nil {
			t.Fatalf("delete old tasks: %v", err)
		}

		instances, err := q.GetTaskInstances(ctx, "recurring")
		if err != nil {
			t.Fatalf("get instances: %v", err)
		}
		gotIDs := map[int64]bool{}
		for _, inst := range instances {
			gotIDs[inst.ID] = true
		}
		if !gotIDs[terminalIDs[len(terminalIDs)-1]] {
			t.Fatalf("want newest terminal instance retained, got %+v", instances)
		}
		if !gotIDs[pending.ID] {
			t.Fatalf("pending task must survive retention even beyond keepLast, got %+v", instances)
		}
		if gotIDs[terminalIDs[0]] {
			t.Fatalf("older terminal instance beyond keepLast must be deleted, got %+v", instances)
		}
	})
}
