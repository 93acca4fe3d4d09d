package periodic

import (
	"context"

	"github.com/scrapeworks/orchestrator/pkg/model"
)

// Housekeeping task names, shared between the scheduler descriptor and the
// worker handler registry so the two sides agree on what they refer to.
const (
	KillDeadTasksName  = "kill_dead_tasks"
	DeleteOldTasksName = "delete_old_tasks"

	KillDeadTasksHandler  = "kill_dead_tasks"
	DeleteOldTasksHandler = "delete_old_tasks"
)

// HousekeepingSource contributes the built-in maintenance jobs every
// deployment needs regardless of which scrapers are configured: reaping
// STARTED tasks whose worker vanished, and trimming old task history.
type HousekeepingSource struct {
	schedule model.Schedule
}

// NewHousekeepingSource builds a source ticking housekeeping jobs on the
// given cadence (model.ScheduleEveryHour is the intended default).
func NewHousekeepingSource(schedule model.Schedule) *HousekeepingSource {
	return &HousekeepingSource{schedule: schedule}
}

func (h *HousekeepingSource) GetPeriodicTasks(ctx context.Context) ([]model.PeriodicTask, error) {
	return []model.PeriodicTask{
		{
			ID:       KillDeadTasksName,
			Name:     KillDeadTasksName,
			Handler:  KillDeadTasksHandler,
			Priority: model.PriorityNormal,
			Schedule: h.schedule,
		},
		{
			ID:       DeleteOldTasksName,
			Name:     DeleteOldTasksName,
			Handler:  DeleteOldTasksHandler,
			Priority: model.PriorityNormal,
			Schedule: h.schedule,
		},
	}, nil
}
