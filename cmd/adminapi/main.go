// Package main implements the orchestrator admin HTTP surface: a thin REST
// API for enqueuing one-off tasks, inspecting queue depth and task history,
// and killing a runaway task.
//
// API Endpoints:
//
//	POST /enqueue        - enqueue a new task
//	GET  /stats           - current queue depth
//	GET  /tasks?name=...  - task instances for a logical name, newest first
//	POST /tasks/kill?id=... - mark a task KILLED
//
// Usage:
//
//	go run cmd/adminapi/main.go
//
// The server listens on :8081 and connects to Redis at REDIS_ADDR
// (default 127.0.0.1:6379). Set API_KEY to require the X-API-Key header.
package main

import (
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/scrapeworks/orchestrator/pkg/logger"
	"github.com/scrapeworks/orchestrator/pkg/model"
	"github.com/scrapeworks/orchestrator/pkg/queue"
)

func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "127.0.0.1:6379"
}

// authMiddleware enforces the X-API-Key header when requiredKey is set.
func authMiddleware(next http.HandlerFunc, requiredKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if requiredKey == "" {
			next(w, r)
			return
		}
		if r.Header.Get("X-API-Key") != requiredKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// enableCORS allows any origin, handling preflight requests inline.
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func setupRouter(q *queue.Queue, apiKey string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/enqueue", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req model.EnqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		task, err := q.Enqueue(r.Context(), req)
		if err == model.ErrTaskHasActiveRun {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if err == model.ErrStorageIsReadOnly {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(task)
	}, apiKey)))

	mux.HandleFunc("/stats", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		n, err := q.GetQueueLen(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"pending": n})
	}, apiKey)))

	mux.HandleFunc("/tasks", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "missing name parameter", http.StatusBadRequest)
			return
		}
		instances, err := q.GetTaskInstances(r.Context(), name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(instances)
	}, apiKey)))

	mux.HandleFunc("/tasks/kill", enableCORS(authMiddleware(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
		if err != nil {
			http.Error(w, "missing or invalid id parameter", http.StatusBadRequest)
			return
		}
		task, err := q.GetTaskInstance(r.Context(), id)
		if err == model.ErrTaskNotFound {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		task.Status = model.StatusKilled
		updated, err := q.UpdateTask(r.Context(), task)
		if err == model.ErrStorageIsReadOnly {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(updated)
	}, apiKey)))

	return mux
}

func main() {
	readonly := flag.Bool("readonly", false, "serve /stats and /tasks only; reject /enqueue and /tasks/kill")
	flag.Parse()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr()})
	var storage queue.Storage = queue.NewRedisStorage(rdb, queue.DefaultTaskTTL)
	if *readonly {
		storage = queue.NewReadOnlyQueueStorage(storage)
		logger.Log.Info().Msg("adminapi: running read-only")
	}
	q := queue.New(storage, queue.DefaultDeadTaskTimeout)

	apiKey := os.Getenv("API_KEY")
	if apiKey == "" {
		logger.Log.Warn().Msg("adminapi: API_KEY not set, authentication disabled")
	}

	mux := setupRouter(q, apiKey)
	logger.Log.Info().Msg("adminapi: listening on :8081")
	if err := http.ListenAndServe(":8081", mux); err != nil {
		logger.Log.Fatal().Err(err).Msg("adminapi: server failed")
	}
}
