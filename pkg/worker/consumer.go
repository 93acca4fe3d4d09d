package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/scrapeworks/orchestrator/pkg/logger"
	"github.com/scrapeworks/orchestrator/pkg/metrics"
	"github.com/scrapeworks/orchestrator/pkg/model"
	"github.com/scrapeworks/orchestrator/pkg/queue"
	"github.com/scrapeworks/orchestrator/pkg/scraperctx"
)

const (
	// DefaultMaxConcurrency bounds in-flight tasks per consumer replica.
	DefaultMaxConcurrency = 50
	// DefaultPollDelay is how long the main loop sleeps when the queue is
	// empty or the concurrency cap is reached.
	DefaultPollDelay = 100 * time.Millisecond
	// DefaultPingDelay is the heartbeat cadence during task execution.
	DefaultPingDelay = time.Second
)

// ContextFactory builds the scraper context handed to a handler for one
// task invocation.
type ContextFactory func(ctx context.Context, task model.Task) *scraperctx.Context

// Option configures a Consumer at construction time.
type Option func(*Consumer)

func WithMaxConcurrency(n int) Option { return func(c *Consumer) { c.maxConcurrency = n } }
func WithPollDelay(d time.Duration) Option { return func(c *Consumer) { c.pollDelay = d } }
func WithPingDelay(d time.Duration) Option { return func(c *Consumer) { c.pingDelay = d } }

// Consumer drains a Queue and supervises each task through a handler
// Registry, with bounded concurrency and cooperative cancellation on
// timeout or external kill.
type Consumer struct {
	queue          *queue.Queue
	registry       *Registry
	contextFactory ContextFactory

	maxConcurrency int
	pollDelay      time.Duration
	pingDelay      time.Duration

	active atomic.Int64
}

// New builds a Consumer. Defaults: DefaultMaxConcurrency,
// DefaultPollDelay, DefaultPingDelay.
func New(q *queue.Queue, registry *Registry, contextFactory ContextFactory, opts ...Option) *Consumer {
	c := &Consumer{
		queue:          q,
		registry:       registry,
		contextFactory: contextFactory,
		maxConcurrency: DefaultMaxConcurrency,
		pollDelay:      DefaultPollDelay,
		pingDelay:      DefaultPingDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run drives the main loop until ctx is cancelled. Cancelling ctx also
// cancels the context handed to every in-flight handler; Run waits for
// those tasks to return and record their outcome before it returns.
func (c *Consumer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if c.active.Load() >= int64(c.maxConcurrency) {
			if !sleepCtx(ctx, c.pollDelay) {
				return ctx.Err()
			}
			continue
		}

		task, ok, err := c.queue.Dequeue(ctx)
		if err != nil {
			logger.Log.Error().Err(err).Msg("worker: dequeue failed")
			if !sleepCtx(ctx, c.pollDelay) {
				return ctx.Err()
			}
			continue
		}
		if !ok {
			if !sleepCtx(ctx, c.pollDelay) {
				return ctx.Err()
			}
			continue
		}

		c.active.Add(1)
		metrics.ActiveTasks.Set(float64(c.active.Load()))
		wg.Add(1)
		go func(t model.Task) {
			defer wg.Done()
			defer func() {
				c.active.Add(-1)
				metrics.ActiveTasks.Set(float64(c.active.Load()))
			}()
			c.supervise(ctx, t)
		}(task)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type handlerOutcome struct {
	result string
	err    error
}

type heartbeatSignal int

const (
	signalTimeout heartbeatSignal = iota + 1
	signalKilled
)

// supervise runs the handler and heartbeat activities for one dequeued
// task, joins on whichever completes or signals first, and persists the
// terminal outcome.
func (c *Consumer) supervise(parentCtx context.Context, task model.Task) {
	if task.StartedAt != nil {
		metrics.QueueLatency.WithLabelValues(task.Handler).Observe(task.StartedAt.Sub(task.CreatedAt).Seconds())
	}
	taskLog := logger.ForTask(task)
	started := time.Now()
	defer func() {
		metrics.TaskDuration.WithLabelValues(task.Handler).Observe(time.Since(started).Seconds())
	}()

	handlerCtx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	handlerDone := make(chan struct{})
	resultCh := make(chan handlerOutcome, 1)
	sctx := c.contextFactory(handlerCtx, task)

	go func() {
		defer close(handlerDone)
		handler, ok := c.registry.Lookup(task.Handler)
		if !ok {
			resultCh <- handlerOutcome{err: model.ErrUnknownTaskHandler}
			return
		}
		result, err := handler.Process(handlerCtx, sctx, task)
		resultCh <- handlerOutcome{result: result, err: err}
	}()

	signalCh := c.heartbeat(parentCtx, handlerDone, task)

	var killed bool
	var outcome handlerOutcome
	select {
	case outcome = <-resultCh:
	case sig := <-signalCh:
		cancel() // cooperative cancellation: the handler must observe ctx.Done()
		<-handlerDone
		select {
		case outcome = <-resultCh:
		default:
		}
		switch sig {
		case signalTimeout:
			outcome = handlerOutcome{err: fmt.Errorf("%w: exceeded %s", model.ErrTaskTimedOut, *task.Timeout)}
		case signalKilled:
			killed = true
		}
	}

	if killed {
		taskLog.Info().Msg("worker: task observed killed externally, leaving terminal state untouched")
		metrics.CountInvocation(metrics.TasksExecuted, task.Handler, task.Name, string(model.StatusKilled))
		return
	}

	c.finalize(taskLog, task, outcome)
}

// heartbeat loops until the handler finishes or it raises a timeout/kill
// signal; it never outlives the handler because handlerDone closing always
// ends the loop.
func (c *Consumer) heartbeat(ctx context.Context, handlerDone <-chan struct{}, task model.Task) <-chan heartbeatSignal {
	out := make(chan heartbeatSignal, 1)
	go func() {
		ticker := time.NewTicker(c.pingDelay)
		defer ticker.Stop()
		for {
			select {
			case <-handlerDone:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if task.Timeout != nil && time.Since(*task.StartedAt) > *task.Timeout {
					out <- signalTimeout
					return
				}
				_, err := c.queue.PingTask(ctx, task.ID)
				if err == model.ErrTaskPingFinished {
					out <- signalKilled
					return
				}
				if err != nil && err != model.ErrTaskPingNotStarted {
					logger.Log.Warn().Err(err).Int64("task_id", task.ID).Msg("worker: heartbeat ping failed")
				}
			}
		}
	}()
	return out
}

func (c *Consumer) finalize(taskLog zerolog.Logger, task model.Task, outcome handlerOutcome) {
	now := time.Now()
	task.FinishedAt = &now
	if outcome.err != nil {
		task.Status = model.StatusFailed
		task.Result = outcome.err.Error()
		taskLog.Error().Err(outcome.err).Msg("worker: handler failed")
	} else {
		task.Status = model.StatusSucceeded
		task.Result = outcome.result
	}

	// Persist on a detached context so a consumer shutdown in progress
	// does not prevent the terminal state from being recorded.
	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.queue.UpdateTask(persistCtx, task); err != nil {
		taskLog.Error().Err(err).Msg("worker: failed to persist final task state")
	}
	metrics.CountInvocation(metrics.TasksExecuted, task.Handler, task.Name, string(task.Status))
}
