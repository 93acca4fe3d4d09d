// Package main implements the orchestrator worker process.
// The worker continuously dequeues tasks, dispatches them to a registered
// TaskHandler, and supervises each run with a heartbeat that enforces
// per-task timeouts and observes external kills.
//
// Usage:
//
//	go run cmd/worker/main.go
//
// The worker connects to Redis at REDIS_ADDR (default 127.0.0.1:6379) and
// exposes Prometheus metrics at :8080/metrics.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/scrapeworks/orchestrator/pkg/logger"
	"github.com/scrapeworks/orchestrator/pkg/model"
	"github.com/scrapeworks/orchestrator/pkg/periodic"
	"github.com/scrapeworks/orchestrator/pkg/queue"
	"github.com/scrapeworks/orchestrator/pkg/scraperctx"
	"github.com/scrapeworks/orchestrator/pkg/worker"
)

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "127.0.0.1:6379"
}

// buildRegistry wires the housekeeping handlers every deployment needs plus
// whatever scraper handlers this replica is responsible for.
func buildRegistry(q *queue.Queue) *worker.Registry {
	registry, err := worker.NewRegistry(
		worker.NewKillDeadTasksHandler(q),
		worker.NewDeleteOldTasksHandler(q, 50),
	)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("worker: failed to build handler registry")
	}
	return registry
}

// newContextFactory builds the scraper context handed to a handler's Process
// call, seeding it with the task's carried state and, for scraper-derived
// tasks, wiring an UpdateStateFunc that persists back through scrapers so the
// next scheduled run observes this run's update.
func newContextFactory(scrapers periodic.ScraperRepository) worker.ContextFactory {
	return func(ctx context.Context, task model.Task) *scraperctx.Context {
		var updateState scraperctx.UpdateStateFunc
		if task.ScraperID != "" {
			updateState = func(ctx context.Context, state string) (model.Scraper, error) {
				return scrapers.UpdateScraperState(ctx, task.ScraperID, state)
			}
		}
		return scraperctx.New(nil, []scraperctx.Middleware{scraperctx.UserAgentMiddleware{}}, nil, task.Payload, task.State, updateState)
	}
}

func main() {
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr()})
	q := queue.New(queue.NewRedisStorage(rdb, queue.DefaultTaskTTL), queue.DefaultDeadTaskTimeout)
	scraperRepo := periodic.NewInMemoryScraperRepository()

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Log.Info().Msg("worker: metrics listening on :8080")
		if err := http.ListenAndServe(":8080", mux); err != nil && err != http.ErrServerClosed {
			logger.Log.Error().Err(err).Msg("worker: metrics server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Log.Info().Msg("worker: shutting down")
		cancel()
	}()

	consumer := worker.New(q, buildRegistry(q), newContextFactory(scraperRepo),
		worker.WithMaxConcurrency(50), worker.WithPollDelay(100*time.Millisecond), worker.WithPingDelay(time.Second))

	logger.Log.Info().Msg("worker: started, waiting for tasks")
	if err := consumer.Run(ctx); err != nil && err != context.Canceled {
		logger.Log.Error().Err(err).Msg("worker: consumer loop exited")
	}
}
