// Package worker implements the consumer: it drains the queue up to a
// configured concurrency, dispatches each task to a registered handler, and
// supervises the run with a heartbeat that enforces timeouts and observes
// external kills.
package worker

import (
	"context"
	"fmt"

	"github.com/scrapeworks/orchestrator/pkg/model"
	"github.com/scrapeworks/orchestrator/pkg/scraperctx"
)

// TaskHandler executes one task kind. Process is handed the task and a
// scraper context providing HTTP access and state persistence, and returns
// either a result string or an error.
type TaskHandler interface {
	Name() string
	Process(ctx context.Context, sctx *scraperctx.Context, task model.Task) (string, error)
}

// Registry looks handlers up by name. Construction fails if two handlers
// share a name.
type Registry struct {
	handlers map[string]TaskHandler
}

// NewRegistry builds a Registry from a list of handlers.
func NewRegistry(handlers ...TaskHandler) (*Registry, error) {
	r := &Registry{handlers: make(map[string]TaskHandler, len(handlers))}
	for _, h := range handlers {
		if _, exists := r.handlers[h.Name()]; exists {
			return nil, fmt.Errorf("worker: duplicate handler name %q", h.Name())
		}
		r.handlers[h.Name()] = h
	}
	return r, nil
}

// Lookup returns the handler registered under name, if any.
func (r *Registry) Lookup(name string) (TaskHandler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}
