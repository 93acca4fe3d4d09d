package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/scrapeworks/orchestrator/pkg/lease"
	"github.com/scrapeworks/orchestrator/pkg/model"
	"github.com/scrapeworks/orchestrator/pkg/periodic"
	"github.com/scrapeworks/orchestrator/pkg/queue"
)

func TestSchedulerEnqueuesOnInterval(t *testing.T) {
	ctx := context.Background()
	q := queue.New(queue.NewMemoryStorage(), time.Hour)
	leases := lease.NewMemoryStorage()
	source := periodic.NewStaticSource([]model.PeriodicTask{
		{ID: "s1", Name: "s1", Handler: "crawl", Schedule: model.ScheduleEverySecond},
	})

	sched := New(q, leases, source, WithPollDelay(50*time.Millisecond), WithOwnerID("replica-a"))

	runCtx, cancel := context.WithTimeout(ctx, 1300*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		sched.Run(runCtx)
		close(done)
	}()
	<-done

	instances, err := q.GetTaskInstances(ctx, "s1")
	if err != nil {
		t.Fatalf("get task instances: %v", err)
	}
	if len(instances) == 0 {
		t.Fatalf("want at least one enqueued instance within the run window")
	}
}

func TestSchedulerSkipsWhileActiveRunExists(t *testing.T) {
	ctx := context.Background()
	q := queue.New(queue.NewMemoryStorage(), time.Hour)
	leases := lease.NewMemoryStorage()
	source := periodic.NewStaticSource(nil)
	sched := New(q, leases, source, WithOwnerID("replica-a"))

	descriptor := model.PeriodicTask{ID: "s1", Name: "s1", Handler: "crawl", Schedule: model.ScheduleEverySecond}

	sched.fire(descriptor)
	sched.fire(descriptor)

	instances, err := q.GetTaskInstances(ctx, "s1")
	if err != nil {
		t.Fatalf("get task instances: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("want exactly one instance while the first is still pending, got %d", len(instances))
	}
}

func TestSchedulerFirePropagatesScraperIDAndState(t *testing.T) {
	ctx := context.Background()
	q := queue.New(queue.NewMemoryStorage(), time.Hour)
	leases := lease.NewMemoryStorage()
	source := periodic.NewStaticSource(nil)
	sched := New(q, leases, source, WithOwnerID("replica-a"))

	descriptor := model.PeriodicTask{
		ID: "s1", Name: "s1", Handler: "crawl", Schedule: model.ScheduleEverySecond,
		ScraperID: "scraper-1", State: "page=3",
	}
	sched.fire(descriptor)

	instances, err := q.GetTaskInstances(ctx, "s1")
	if err != nil {
		t.Fatalf("get task instances: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("want one instance, got %d", len(instances))
	}
	if instances[0].ScraperID != "scraper-1" || instances[0].State != "page=3" {
		t.Fatalf("want scraper id and state propagated onto the task, got %+v", instances[0])
	}
}

func TestDescriptorsEqualIgnoresState(t *testing.T) {
	a := model.PeriodicTask{ID: "s1", Name: "s1", Handler: "crawl", ScraperID: "scraper-1", State: "page=1"}
	b := a
	b.State = "page=2"
	if !descriptorsEqual(a, b) {
		t.Fatalf("want descriptors carrying only a different State to compare equal")
	}
}

func TestSchedulerReplicasSharingLeaseNeverDuplicateTaskIDs(t *testing.T) {
	ctx := context.Background()
	q := queue.New(queue.NewMemoryStorage(), time.Hour)
	leases := lease.NewMemoryStorage()
	source := periodic.NewStaticSource([]model.PeriodicTask{
		{ID: "s1", Name: "s1", Handler: "crawl", Schedule: model.ScheduleEverySecond},
	})

	a := New(q, leases, source, WithPollDelay(50*time.Millisecond), WithOwnerID("replica-a"))
	b := New(q, leases, source, WithPollDelay(50*time.Millisecond), WithOwnerID("replica-b"))

	runCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	doneA := make(chan struct{})
	doneB := make(chan struct{})
	go func() { a.Run(runCtx); close(doneA) }()
	go func() { b.Run(runCtx); close(doneB) }()
	<-doneA
	<-doneB

	// Both replicas share one lease store and one queue; only the lease
	// holder registers triggers and enqueues. This checks that the task
	// instances recorded across both replicas never share an id.
	instances, err := q.GetTaskInstances(ctx, "s1")
	if err != nil {
		t.Fatalf("get task instances: %v", err)
	}
	seen := make(map[int64]bool)
	for _, inst := range instances {
		if seen[inst.ID] {
			t.Fatalf("duplicate task id %d across replicas", inst.ID)
		}
		seen[inst.ID] = true
	}
}
