package worker

import (
	"context"
	"fmt"

	"github.com/scrapeworks/orchestrator/pkg/model"
	"github.com/scrapeworks/orchestrator/pkg/periodic"
	"github.com/scrapeworks/orchestrator/pkg/queue"
	"github.com/scrapeworks/orchestrator/pkg/scraperctx"
)

// KillDeadTasksHandler reaps STARTED tasks whose worker has gone silent
// past the configured dead-task timeout.
type KillDeadTasksHandler struct {
	queue *queue.Queue
}

// NewKillDeadTasksHandler binds the handler to the shared queue.
func NewKillDeadTasksHandler(q *queue.Queue) *KillDeadTasksHandler {
	return &KillDeadTasksHandler{queue: q}
}

func (h *KillDeadTasksHandler) Name() string { return periodic.KillDeadTasksHandler }

func (h *KillDeadTasksHandler) Process(ctx context.Context, _ *scraperctx.Context, _ model.Task) (string, error) {
	killed, err := h.queue.KillDeadTasks(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("killed %d dead tasks", len(killed)), nil
}

// DeleteOldTasksHandler trims task history beyond keepLast per logical name.
type DeleteOldTasksHandler struct {
	queue    *queue.Queue
	keepLast int
}

// NewDeleteOldTasksHandler binds the handler to the shared queue and its
// retention count.
func NewDeleteOldTasksHandler(q *queue.Queue, keepLast int) *DeleteOldTasksHandler {
	return &DeleteOldTasksHandler{queue: q, keepLast: keepLast}
}

func (h *DeleteOldTasksHandler) Name() string { return periodic.DeleteOldTasksHandler }

func (h *DeleteOldTasksHandler) Process(ctx context.Context, _ *scraperctx.Context, _ model.Task) (string, error) {
	if err := h.queue.DeleteOldTasks(ctx, h.keepLast); err != nil {
		return "", err
	}
	return "ok", nil
}
