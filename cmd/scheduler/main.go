// Package main implements the orchestrator scheduler process. A scheduler
// replica holds the scheduler lease and reconciles periodic task
// descriptors into enqueued runs; any number of replicas may run
// concurrently, since every replica ticks but only the lease holder
// registers triggers and enqueues.
//
// Usage:
//
//	go run cmd/scheduler/main.go
//
// The scheduler connects to Redis at REDIS_ADDR (default 127.0.0.1:6379).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/scrapeworks/orchestrator/pkg/lease"
	"github.com/scrapeworks/orchestrator/pkg/logger"
	"github.com/scrapeworks/orchestrator/pkg/model"
	"github.com/scrapeworks/orchestrator/pkg/periodic"
	"github.com/scrapeworks/orchestrator/pkg/queue"
	"github.com/scrapeworks/orchestrator/pkg/scheduler"
)

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "127.0.0.1:6379"
}

func main() {
	readonly := flag.Bool("readonly", false, "run as a standby replica that never wins or renews the scheduler lease")
	flag.Parse()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr()})
	q := queue.New(queue.NewRedisStorage(rdb, queue.DefaultTaskTTL), queue.DefaultDeadTaskTimeout)
	var leases lease.Storage = lease.NewRedisStorage(rdb)
	if *readonly {
		leases = lease.NewReadOnlyLeaseStorage(leases)
		logger.Log.Info().Msg("scheduler: running read-only, will never hold the lease")
	}

	scraperRepo := periodic.NewInMemoryScraperRepository()
	source := periodic.NewMultiSource(
		periodic.NewHousekeepingSource(model.ScheduleEveryHour),
		periodic.NewScraperSource(scraperRepo),
	)

	sched := scheduler.New(q, leases, source)

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Log.Info().Msg("scheduler: shutting down")
		cancel()
	}()

	logger.Log.Info().Msg("scheduler: started")
	if err := sched.Run(ctx); err != nil && err != context.Canceled {
		logger.Log.Error().Err(err).Msg("scheduler: run loop exited")
	}
}
