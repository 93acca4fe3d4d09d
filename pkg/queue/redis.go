package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scrapeworks/orchestrator/pkg/metrics"
	"github.com/scrapeworks/orchestrator/pkg/model"
)

// DefaultTaskTTL bounds how long a task record lives in Redis, independent
// of the retention job.
const DefaultTaskTTL = 7 * 24 * time.Hour

// scorePriorityBitOffset: sorted-set score is (priority<<32)|id so priority
// occupies the high bits and id the low bits, which makes numeric ordering
// of the score match the (priority, id) ordering invariant exactly.
const scorePriorityBitOffset = 32

const (
	queueSetKey  = "internal::queue"
	idCounterKey = "internal::id_counter"
)

// RedisStorage is the networked queue backend. Per-task records live at
// task::<id> with a TTL; task_name::<name> is a secondary index set; the
// pending ordering is the internal::queue sorted set.
type RedisStorage struct {
	rdb     *redis.Client
	taskTTL time.Duration
}

// NewRedisStorage builds a Redis-backed queue storage. taskTTL of zero uses
// DefaultTaskTTL.
func NewRedisStorage(rdb *redis.Client, taskTTL time.Duration) *RedisStorage {
	if taskTTL == 0 {
		taskTTL = DefaultTaskTTL
	}
	return &RedisStorage{rdb: rdb, taskTTL: taskTTL}
}

func taskKey(id int64) string         { return fmt.Sprintf("task::%d", id) }
func taskNameKey(name string) string  { return "task_name::" + name }
func nameFromTaskNameKey(k string) string { return strings.TrimPrefix(k, "task_name::") }

func taskScore(task model.Task) float64 {
	return float64(int64(task.Priority)<<scorePriorityBitOffset + task.ID)
}

func (r *RedisStorage) EnqueueTask(ctx context.Context, task model.Task) (model.Task, error) {
	defer metrics.ObserveLatency(metrics.StorageOpDuration, "redis", "enqueue_task")()
	metrics.CountInvocation(metrics.StorageOpInvocations, "redis", "enqueue_task")

	id, err := r.rdb.Incr(ctx, idCounterKey).Result()
	if err != nil {
		return model.Task{}, err
	}
	task.ID = id

	data, err := json.Marshal(task)
	if err != nil {
		return model.Task{}, err
	}

	key := taskKey(task.ID)
	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, key, data, r.taskTTL)
	pipe.SAdd(ctx, taskNameKey(task.Name), key)
	pipe.ZAdd(ctx, queueSetKey, redis.Z{Score: taskScore(task), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

func (r *RedisStorage) DequeueTask(ctx context.Context) (model.Task, bool, error) {
	defer metrics.ObserveLatency(metrics.StorageOpDuration, "redis", "dequeue_task")()
	metrics.CountInvocation(metrics.StorageOpInvocations, "redis", "dequeue_task")

	popped, err := r.rdb.ZPopMin(ctx, queueSetKey, 1).Result()
	if err != nil {
		return model.Task{}, false, err
	}
	if len(popped) == 0 {
		return model.Task{}, false, nil
	}
	key, ok := popped[0].Member.(string)
	if !ok {
		return model.Task{}, false, fmt.Errorf("queue: unexpected member type in %s", queueSetKey)
	}
	raw, err := r.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return model.Task{}, false, model.ErrTaskNotFound
	}
	if err != nil {
		return model.Task{}, false, err
	}
	var task model.Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return model.Task{}, false, err
	}
	return task, true, nil
}

func (r *RedisStorage) GetTaskInstance(ctx context.Context, id int64) (model.Task, error) {
	raw, err := r.rdb.Get(ctx, taskKey(id)).Result()
	if err == redis.Nil {
		return model.Task{}, model.ErrTaskNotFound
	}
	if err != nil {
		return model.Task{}, err
	}
	var task model.Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

func (r *RedisStorage) GetTaskInstances(ctx context.Context, name string) ([]model.Task, error) {
	keys, err := r.rdb.SMembers(ctx, taskNameKey(name)).Result()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	raws, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	tasks := make([]model.Task, 0, len(raws))
	for _, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue // expired/missing member, skip
		}
		var t model.Task
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID > tasks[j].ID })
	return tasks, nil
}

func (r *RedisStorage) GetTasks(ctx context.Context) ([]model.Task, error) {
	var all []model.Task
	iter := r.rdb.Scan(ctx, 0, "task_name::*", 0).Iterator()
	for iter.Next(ctx) {
		instances, err := r.GetTaskInstances(ctx, nameFromTaskNameKey(iter.Val()))
		if err != nil {
			return nil, err
		}
		all = append(all, instances...)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all, nil
}

func (r *RedisStorage) UpdateTask(ctx context.Context, task model.Task) (model.Task, error) {
	defer metrics.ObserveLatency(metrics.StorageOpDuration, "redis", "update_task")()
	metrics.CountInvocation(metrics.StorageOpInvocations, "redis", "update_task")

	data, err := json.Marshal(task)
	if err != nil {
		return model.Task{}, err
	}
	// XX: only set if the key already exists, so updates never silently
	// create a task record.
	_, err = r.rdb.SetArgs(ctx, taskKey(task.ID), data, redis.SetArgs{
		Mode: "XX",
		TTL:  r.taskTTL,
	}).Result()
	if err == redis.Nil {
		return model.Task{}, model.ErrTaskNotFound
	}
	if err != nil {
		return model.Task{}, err
	}
	return task, nil
}

func (r *RedisStorage) GetQueueLen(ctx context.Context) (int, error) {
	n, err := r.rdb.ZCard(ctx, queueSetKey).Result()
	return int(n), err
}

func (r *RedisStorage) DeleteOldTasks(ctx context.Context, keepLast int) error {
	defer metrics.ObserveLatency(metrics.StorageOpDuration, "redis", "delete_old_tasks")()
	metrics.CountInvocation(metrics.StorageOpInvocations, "redis", "delete_old_tasks")

	iter := r.rdb.Scan(ctx, 0, "task_name::*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		instances, err := r.GetTaskInstances(ctx, nameFromTaskNameKey(key)) // newest-id first
		if err != nil {
			return err
		}
		if len(instances) <= keepLast {
			continue
		}
		for _, t := range instances[keepLast:] {
			if t.Status == model.StatusPending {
				continue
			}
			tk := taskKey(t.ID)
			pipe := r.rdb.TxPipeline()
			pipe.Del(ctx, tk)
			pipe.SRem(ctx, key, tk)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
		}
	}
	return iter.Err()
}
