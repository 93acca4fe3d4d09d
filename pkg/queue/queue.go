package queue

import (
	"context"
	"time"

	"github.com/scrapeworks/orchestrator/pkg/metrics"
	"github.com/scrapeworks/orchestrator/pkg/model"
)

// DefaultDeadTaskTimeout is how long a STARTED task may go without a
// heartbeat before KillDeadTasks marks it DEAD.
const DefaultDeadTaskTimeout = 5 * time.Minute

// Queue is the logical layer above Storage: it owns the at-most-one-
// in-flight-per-name guard, the status state machine and dead-task
// detection. All core callers (scheduler, worker, admin surface) talk to a
// Queue, never to a Storage directly.
type Queue struct {
	storage         Storage
	deadTaskTimeout time.Duration
}

// New builds a Queue over storage, using dur as the dead-task timeout, or
// DefaultDeadTaskTimeout if dur is zero.
func New(storage Storage, dur time.Duration) *Queue {
	if dur == 0 {
		dur = DefaultDeadTaskTimeout
	}
	return &Queue{storage: storage, deadTaskTimeout: dur}
}

// Enqueue creates a new PENDING task from req, unless a task with the same
// name is already PENDING or STARTED, in which case it returns
// model.ErrTaskHasActiveRun. Not linearizable across replicas: the check
// and the insert are separate storage calls, so two concurrent callers can
// both pass the check for the same name.
func (q *Queue) Enqueue(ctx context.Context, req model.EnqueueRequest) (model.Task, error) {
	defer metrics.ObserveLatency(metrics.StorageOpDuration, "logical", "enqueue")()
	metrics.CountInvocation(metrics.StorageOpInvocations, "logical", "enqueue")

	existing, err := q.storage.GetTaskInstances(ctx, req.Name)
	if err != nil {
		return model.Task{}, err
	}
	for _, t := range existing {
		if t.Status == model.StatusPending || t.Status == model.StatusStarted {
			return model.Task{}, model.ErrTaskHasActiveRun
		}
	}
	task := model.Task{
		Name:      req.Name,
		Handler:   req.Handler,
		Status:    model.StatusPending,
		Priority:  req.Priority,
		CreatedAt: time.Now(),
		Payload:   req.Payload,
		Timeout:   req.Timeout,
		ScraperID: req.ScraperID,
		State:     req.State,
	}
	return q.storage.EnqueueTask(ctx, task)
}

// Dequeue removes and returns the highest-priority pending task, marking it
// STARTED with StartedAt set to now. Returns (zero, false, nil) if the queue
// is empty.
func (q *Queue) Dequeue(ctx context.Context) (model.Task, bool, error) {
	defer metrics.ObserveLatency(metrics.StorageOpDuration, "logical", "dequeue")()
	metrics.CountInvocation(metrics.StorageOpInvocations, "logical", "dequeue")

	task, ok, err := q.storage.DequeueTask(ctx)
	if err != nil || !ok {
		return model.Task{}, ok, err
	}
	now := time.Now()
	task.StartedAt = &now
	task.Status = model.StatusStarted
	return q.storage.UpdateTask(ctx, task)
}

// PingTask records a heartbeat for the STARTED task id. Returns
// model.ErrTaskPingNotStarted if the task is still PENDING, or
// model.ErrTaskPingFinished if it is in any other non-STARTED state
// (including externally KILLED).
func (q *Queue) PingTask(ctx context.Context, id int64) (model.Task, error) {
	defer metrics.ObserveLatency(metrics.StorageOpDuration, "logical", "ping_task")()
	metrics.CountInvocation(metrics.StorageOpInvocations, "logical", "ping_task")

	task, err := q.storage.GetTaskInstance(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if task.Status == model.StatusPending {
		return model.Task{}, model.ErrTaskPingNotStarted
	}
	if task.Status != model.StatusStarted {
		return model.Task{}, model.ErrTaskPingFinished
	}
	now := time.Now()
	task.LastActiveAt = &now
	return q.storage.UpdateTask(ctx, task)
}

// UpdateTask persists arbitrary task mutations, used by the worker to
// record terminal state and by admin tooling to set status to KILLED.
func (q *Queue) UpdateTask(ctx context.Context, task model.Task) (model.Task, error) {
	defer metrics.ObserveLatency(metrics.StorageOpDuration, "logical", "update_task")()
	metrics.CountInvocation(metrics.StorageOpInvocations, "logical", "update_task")
	return q.storage.UpdateTask(ctx, task)
}

// GetQueueLen returns the number of pending tasks.
func (q *Queue) GetQueueLen(ctx context.Context) (int, error) {
	return q.storage.GetQueueLen(ctx)
}

// GetTaskInstance looks a single task up by id.
func (q *Queue) GetTaskInstance(ctx context.Context, id int64) (model.Task, error) {
	return q.storage.GetTaskInstance(ctx, id)
}

// GetTaskInstances returns every recorded task instance for name, newest first.
func (q *Queue) GetTaskInstances(ctx context.Context, name string) ([]model.Task, error) {
	return q.storage.GetTaskInstances(ctx, name)
}

// KillDeadTasks scans every task and marks as DEAD any STARTED task whose
// last activity (max of last_active_at, started_at, created_at) is older
// than the configured dead-task timeout.
func (q *Queue) KillDeadTasks(ctx context.Context) ([]model.Task, error) {
	defer metrics.ObserveLatency(metrics.StorageOpDuration, "logical", "kill_dead_tasks")()
	metrics.CountInvocation(metrics.StorageOpInvocations, "logical", "kill_dead_tasks")

	tasks, err := q.storage.GetTasks(ctx)
	if err != nil {
		return nil, err
	}
	var killed []model.Task
	now := time.Now()
	for _, t := range tasks {
		if t.Status != model.StatusStarted {
			continue
		}
		if now.Sub(t.LastActivity()) <= q.deadTaskTimeout {
			continue
		}
		t.Status = model.StatusDead
		t.FinishedAt = &now
		updated, err := q.storage.UpdateTask(ctx, t)
		if err != nil {
			return killed, err
		}
		killed = append(killed, updated)
	}
	return killed, nil
}

// DeleteOldTasks delegates retention to the storage backend.
func (q *Queue) DeleteOldTasks(ctx context.Context, keepLast int) error {
	defer metrics.ObserveLatency(metrics.StorageOpDuration, "logical", "delete_old_tasks")()
	metrics.CountInvocation(metrics.StorageOpInvocations, "logical", "delete_old_tasks")
	return q.storage.DeleteOldTasks(ctx, keepLast)
}
