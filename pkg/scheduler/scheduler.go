// Package scheduler runs the leader-elected periodic tick that turns
// PeriodicTask descriptors into enqueued tasks, on schedules ranging from
// fixed-cadence intervals to standard crontab expressions.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/scrapeworks/orchestrator/pkg/lease"
	"github.com/scrapeworks/orchestrator/pkg/logger"
	"github.com/scrapeworks/orchestrator/pkg/metrics"
	"github.com/scrapeworks/orchestrator/pkg/model"
	"github.com/scrapeworks/orchestrator/pkg/periodic"
	"github.com/scrapeworks/orchestrator/pkg/queue"
)

const (
	// DefaultPollDelay is how often the scheduler attempts lease
	// acquisition and re-reads the periodic-task source.
	DefaultPollDelay = 5 * time.Second
	// DefaultLeaseDuration comfortably exceeds DefaultPollDelay so a
	// leader that renews on every tick never lapses under normal jitter.
	DefaultLeaseDuration = 60 * time.Second

	defaultLeaseName = "scheduler"
)

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithPollDelay overrides DefaultPollDelay.
func WithPollDelay(d time.Duration) Option {
	return func(s *Scheduler) { s.pollDelay = d }
}

// WithLeaseDuration overrides DefaultLeaseDuration.
func WithLeaseDuration(d time.Duration) Option {
	return func(s *Scheduler) { s.leaseDuration = d }
}

// WithLeaseName overrides the default lease name, useful when multiple
// independent schedulers share one lease backend.
func WithLeaseName(name string) Option {
	return func(s *Scheduler) { s.leaseName = name }
}

// WithOwnerID overrides the random per-process owner id, primarily for
// deterministic tests.
func WithOwnerID(id string) Option {
	return func(s *Scheduler) { s.ownerID = id }
}

type triggerState struct {
	descriptor model.PeriodicTask
	entryID    cron.EntryID
}

// Scheduler reconciles periodic.Source descriptors into cron.Cron-managed
// triggers while it holds the scheduler lease, and stays inert otherwise.
type Scheduler struct {
	queue  *queue.Queue
	leases lease.Storage
	source periodic.Source

	ownerID       string
	leaseName     string
	leaseDuration time.Duration
	pollDelay     time.Duration

	cron *cron.Cron

	mu       sync.Mutex
	triggers map[model.PeriodicTaskID]triggerState
}

// New builds a Scheduler. Defaults: DefaultPollDelay, DefaultLeaseDuration,
// lease name "scheduler", and a random uuid owner id.
func New(q *queue.Queue, leases lease.Storage, source periodic.Source, opts ...Option) *Scheduler {
	s := &Scheduler{
		queue:         q,
		leases:        leases,
		source:        source,
		ownerID:       uuid.NewString(),
		leaseName:     defaultLeaseName,
		leaseDuration: DefaultLeaseDuration,
		pollDelay:     DefaultPollDelay,
		cron:          cron.New(),
		triggers:      make(map[model.PeriodicTaskID]triggerState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks, ticking at pollDelay, until ctx is cancelled. It starts and
// stops the underlying cron engine around the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	defer func() { <-s.cron.Stop().Done() }()

	s.tick(ctx)

	ticker := time.NewTicker(s.pollDelay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	metrics.ActiveReplicas.WithLabelValues("total_scheduler").Set(1)

	_, acquired, err := s.leases.MaybeAcquire(ctx, s.leaseName, s.ownerID, s.leaseDuration)
	if err != nil {
		logger.Log.Error().Err(err).Msg("scheduler: lease acquisition failed")
		return
	}
	if acquired {
		metrics.ActiveReplicas.WithLabelValues("active_scheduler").Set(1)
	} else {
		metrics.ActiveReplicas.WithLabelValues("active_scheduler").Set(0)
		// Another replica leads; leave the trigger map untouched so that
		// regaining leadership resumes without a reload.
		return
	}

	descriptors, err := s.source.GetPeriodicTasks(ctx)
	if err != nil {
		logger.Log.Error().Err(err).Msg("scheduler: failed to read periodic task source")
		return
	}
	s.reconcile(ctx, descriptors)

	if n, err := s.queue.GetQueueLen(ctx); err == nil {
		metrics.QueueLength.Set(float64(n))
	}
}

func (s *Scheduler) reconcile(ctx context.Context, descriptors []model.PeriodicTask) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[model.PeriodicTaskID]bool, len(descriptors))
	for _, d := range descriptors {
		seen[d.ID] = true

		if d.Schedule == model.ScheduleInactive {
			s.cancelLocked(d.ID)
			continue
		}

		if existing, ok := s.triggers[d.ID]; ok {
			if descriptorsEqual(existing.descriptor, d) {
				continue
			}
			s.cron.Remove(existing.entryID)
			delete(s.triggers, d.ID)
		}

		entryID, err := s.registerLocked(ctx, d)
		if err != nil {
			logger.Log.Error().Err(err).Str("name", d.Name).Msg("scheduler: failed to register trigger")
			continue
		}
		s.triggers[d.ID] = triggerState{descriptor: d, entryID: entryID}
	}

	for id, t := range s.triggers {
		if !seen[id] {
			s.cron.Remove(t.entryID)
			delete(s.triggers, id)
		}
	}
}

func (s *Scheduler) cancelLocked(id model.PeriodicTaskID) {
	if t, ok := s.triggers[id]; ok {
		s.cron.Remove(t.entryID)
		delete(s.triggers, id)
	}
}

func (s *Scheduler) registerLocked(ctx context.Context, d model.PeriodicTask) (cron.EntryID, error) {
	sched, err := s.buildSchedule(ctx, d)
	if err != nil {
		return 0, err
	}
	descriptor := d
	job := cron.FuncJob(func() { s.fire(descriptor) })
	return s.cron.Schedule(sched, job), nil
}

func (s *Scheduler) buildSchedule(ctx context.Context, d model.PeriodicTask) (cron.Schedule, error) {
	if d.Schedule == model.ScheduleCrontab {
		return cron.ParseStandard(d.Crontab)
	}

	interval, ok := intervalFor(d.Schedule)
	if !ok {
		return nil, fmt.Errorf("scheduler: unsupported schedule kind %q", d.Schedule)
	}

	anchor := time.Now()
	if instances, err := s.queue.GetTaskInstances(ctx, d.Name); err == nil {
		for _, inst := range instances { // newest id first
			if inst.FinishedAt != nil {
				anchor = *inst.FinishedAt
				break
			}
		}
	}
	return intervalSchedule{interval: interval, anchor: anchor}, nil
}

func (s *Scheduler) fire(d model.PeriodicTask) {
	ctx := context.Background()
	// Triggers registered while leading stay registered after the lease is
	// lost, so each fire re-checks (and renews) the lease before enqueuing.
	if _, held, err := s.leases.MaybeAcquire(ctx, s.leaseName, s.ownerID, s.leaseDuration); err != nil || !held {
		logger.Log.Debug().Str("name", d.Name).Msg("scheduler: not holding the lease, skipping trigger")
		return
	}
	_, err := s.queue.Enqueue(ctx, model.EnqueueRequest{
		Name:      d.Name,
		Handler:   d.Handler,
		Priority:  d.Priority,
		Payload:   d.Payload,
		Timeout:   d.Timeout,
		ScraperID: d.ScraperID,
		State:     d.State,
	})
	if err == model.ErrTaskHasActiveRun {
		logger.Log.Debug().Str("name", d.Name).Msg("scheduler: previous instance still running, skipping")
		return
	}
	if err != nil {
		logger.Log.Error().Err(err).Str("name", d.Name).Msg("scheduler: failed to enqueue periodic task")
		return
	}
	metrics.CountInvocation(metrics.TasksExecuted, d.Handler, d.Name, "enqueued")
}

// descriptorsEqual intentionally ignores ScraperID (stable per registration)
// and State (mutated by every run's handler): comparing State would make a
// descriptor "change" on every tick after the first state update, forcing a
// needless cancel-and-reregister that resets the interval schedule's anchor.
func descriptorsEqual(a, b model.PeriodicTask) bool {
	if a.Handler != b.Handler || a.Priority != b.Priority || a.Payload != b.Payload ||
		a.Schedule != b.Schedule || a.Crontab != b.Crontab {
		return false
	}
	switch {
	case a.Timeout == nil && b.Timeout == nil:
		return true
	case a.Timeout == nil || b.Timeout == nil:
		return false
	default:
		return *a.Timeout == *b.Timeout
	}
}
