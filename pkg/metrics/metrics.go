// Package metrics holds the Prometheus collectors shared by the queue,
// lease, scheduler and worker packages, plus small helpers for timing and
// counting invocations without repeating boilerplate at every call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueLength is the number of currently pending tasks, published by
	// the scheduler on every successful tick.
	QueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Name:      "queue_length",
		Help:      "Number of pending tasks in the queue",
	})

	// ActiveReplicas tracks scheduler leadership and total replica counts.
	// Labels: type = "total_scheduler" | "active_scheduler".
	ActiveReplicas = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Name:      "replicas",
		Help:      "Scheduler replica / leadership gauges",
	}, []string{"type"})

	// TasksExecuted counts task outcomes: the terminal statuses recorded or
	// observed by the worker, plus status "enqueued" each time the
	// scheduler enqueues a periodic task.
	// Labels: handler, name, status.
	TasksExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Name:      "tasks_executed_total",
		Help:      "Total number of tasks by outcome status (terminal statuses, plus scheduler enqueues)",
	}, []string{"handler", "name", "status"})

	// TaskDuration measures handler execution latency.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Name:      "task_duration_seconds",
		Help:      "Duration of task handler execution",
		Buckets:   prometheus.DefBuckets,
	}, []string{"handler"})

	// QueueLatency measures time_spent_in_queue: started_at - created_at.
	QueueLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Name:      "queue_latency_seconds",
		Help:      "Time a task spent pending before being dequeued",
		Buckets:   prometheus.DefBuckets,
	}, []string{"handler"})

	// ActiveTasks is the current size of a consumer's in-flight task set.
	ActiveTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Name:      "consumer_active_tasks",
		Help:      "Number of tasks currently being processed by this consumer replica",
	})

	// StorageOpDuration measures latency of individual storage operations.
	// Labels: backend ("memory" | "redis"), op.
	StorageOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Name:      "storage_op_duration_seconds",
		Help:      "Duration of queue/lease storage operations",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend", "op"})

	// StorageOpInvocations counts storage operation calls.
	StorageOpInvocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Name:      "storage_op_invocations_total",
		Help:      "Number of storage operation invocations",
	}, []string{"backend", "op"})
)

// ObserveLatency starts a timer and returns a func that records the elapsed
// time against h once called. Typical use:
// `defer metrics.ObserveLatency(h, labels...)()`.
func ObserveLatency(h *prometheus.HistogramVec, labelValues ...string) func() {
	start := time.Now()
	return func() {
		h.WithLabelValues(labelValues...).Observe(time.Since(start).Seconds())
	}
}

// CountInvocation increments c by one for the given label values.
func CountInvocation(c *prometheus.CounterVec, labelValues ...string) {
	c.WithLabelValues(labelValues...).Inc()
}
