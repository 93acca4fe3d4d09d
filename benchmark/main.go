// Package main provides a benchmark tool measuring enqueue throughput
// against a Redis-backed queue and reporting how many tasks are left
// pending afterwards.
//
// Usage:
//
//	go run benchmark/main.go -tasks 10000 -workers 10
package main

import (
	"context"
	"flag"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scrapeworks/orchestrator/pkg/model"
	"github.com/scrapeworks/orchestrator/pkg/queue"
)

func main() {
	numTasks := flag.Int("tasks", 10000, "number of tasks to enqueue")
	numWorkers := flag.Int("workers", 10, "number of concurrent enqueuers")
	redisAddr := flag.String("redis", "127.0.0.1:6379", "redis address")
	flag.Parse()

	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
	q := queue.New(queue.NewRedisStorage(rdb, queue.DefaultTaskTTL), queue.DefaultDeadTaskTimeout)
	ctx := context.Background()

	fmt.Printf("orchestrator benchmark\n")
	fmt.Printf("tasks to enqueue: %d, concurrent enqueuers: %d\n\n", *numTasks, *numWorkers)

	start := time.Now()
	var wg sync.WaitGroup
	var enqueued, rejected atomic.Int64
	perWorker := *numTasks / *numWorkers

	for w := 0; w < *numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				name := fmt.Sprintf("bench-%d-%d", workerID, j)
				_, err := q.Enqueue(ctx, model.EnqueueRequest{
					Name:     name,
					Handler:  "benchmark",
					Priority: model.PriorityNormal,
					Payload:  "{}",
				})
				switch err {
				case nil:
					enqueued.Add(1)
				case model.ErrTaskHasActiveRun:
					rejected.Add(1)
				default:
					fmt.Printf("enqueue error: %v\n", err)
				}
			}
		}(w)
	}
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("enqueued %d tasks (%d rejected) in %s\n", enqueued.Load(), rejected.Load(), elapsed)
	fmt.Printf("throughput: %.2f tasks/sec\n", float64(enqueued.Load())/elapsed.Seconds())

	n, err := q.GetQueueLen(ctx)
	if err != nil {
		fmt.Printf("get queue len: %v\n", err)
		return
	}
	fmt.Printf("pending after enqueue phase: %d\n", n)
}
