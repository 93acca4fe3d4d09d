package queue

import (
	"container/heap"
	"context"
	"sort"
	"sync"

	"github.com/scrapeworks/orchestrator/pkg/metrics"
	"github.com/scrapeworks/orchestrator/pkg/model"
)

// entry is one (priority, id) slot in the pending min-heap. The task body
// itself lives in MemoryStorage.tasks; the heap only orders IDs.
type entry struct {
	priority model.Priority
	id       int64
}

// pendingHeap orders entries by (priority, id) ascending, matching the
// storage-level ordering invariant: higher priority first, FIFO within
// priority.
type pendingHeap []entry

func (h pendingHeap) Len() int { return len(h) }
func (h pendingHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].id < h[j].id
}
func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *pendingHeap) Push(x any)   { *h = append(*h, x.(entry)) }
func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MemoryStorage is the in-process queue backend: a min-heap ordered by
// (priority, id), a map of task instances and a name index, all guarded by
// one mutex. No mutex is ever held across an I/O wait.
type MemoryStorage struct {
	mu      sync.Mutex
	nextID  int64
	pending pendingHeap
	tasks   map[int64]model.Task
	byName  map[string]map[int64]struct{}
}

// NewMemoryStorage returns an empty in-process queue storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tasks:  make(map[int64]model.Task),
		byName: make(map[string]map[int64]struct{}),
	}
}

func (m *MemoryStorage) EnqueueTask(ctx context.Context, task model.Task) (model.Task, error) {
	defer metrics.ObserveLatency(metrics.StorageOpDuration, "memory", "enqueue_task")()
	metrics.CountInvocation(metrics.StorageOpInvocations, "memory", "enqueue_task")

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	task.ID = m.nextID
	m.tasks[task.ID] = task
	if m.byName[task.Name] == nil {
		m.byName[task.Name] = make(map[int64]struct{})
	}
	m.byName[task.Name][task.ID] = struct{}{}
	heap.Push(&m.pending, entry{priority: task.Priority, id: task.ID})
	return task, nil
}

func (m *MemoryStorage) DequeueTask(ctx context.Context) (model.Task, bool, error) {
	defer metrics.ObserveLatency(metrics.StorageOpDuration, "memory", "dequeue_task")()
	metrics.CountInvocation(metrics.StorageOpInvocations, "memory", "dequeue_task")

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending.Len() == 0 {
		return model.Task{}, false, nil
	}
	e := heap.Pop(&m.pending).(entry)
	task, ok := m.tasks[e.id]
	if !ok {
		return model.Task{}, false, nil
	}
	return task, true, nil
}

func (m *MemoryStorage) GetTaskInstance(ctx context.Context, id int64) (model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return model.Task{}, model.ErrTaskNotFound
	}
	return task, nil
}

func (m *MemoryStorage) GetTaskInstances(ctx context.Context, name string) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byName[name]
	out := make([]model.Task, 0, len(ids))
	for id := range ids {
		out = append(out, m.tasks[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *MemoryStorage) GetTasks(ctx context.Context) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStorage) UpdateTask(ctx context.Context, task model.Task) (model.Task, error) {
	defer metrics.ObserveLatency(metrics.StorageOpDuration, "memory", "update_task")()
	metrics.CountInvocation(metrics.StorageOpInvocations, "memory", "update_task")

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[task.ID]; !ok {
		return model.Task{}, model.ErrTaskNotFound
	}
	m.tasks[task.ID] = task
	return task, nil
}

func (m *MemoryStorage) GetQueueLen(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.Len(), nil
}

func (m *MemoryStorage) DeleteOldTasks(ctx context.Context, keepLast int) error {
	defer metrics.ObserveLatency(metrics.StorageOpDuration, "memory", "delete_old_tasks")()
	metrics.CountInvocation(metrics.StorageOpInvocations, "memory", "delete_old_tasks")

	m.mu.Lock()
	defer m.mu.Unlock()

	for name, ids := range m.byName {
		sorted := make([]int64, 0, len(ids))
		for id := range ids {
			sorted = append(sorted, id)
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
		if len(sorted) <= keepLast {
			continue
		}
		for _, id := range sorted[keepLast:] {
			if t, ok := m.tasks[id]; ok {
				if t.Status == model.StatusPending {
					continue
				}
				delete(m.tasks, id)
				delete(m.byName[name], id)
			}
		}
	}
	return nil
}
