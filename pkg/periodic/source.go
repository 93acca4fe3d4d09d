// Package periodic supplies the scheduler with the set of PeriodicTask
// descriptors it should keep running, from static lists, scraper
// repositories and built-in housekeeping jobs.
package periodic

import (
	"context"

	"github.com/scrapeworks/orchestrator/pkg/model"
)

// Source produces the current set of periodic task descriptors. The
// scheduler re-reads it on every tick, so a Source backed by a mutable
// repository (e.g. ScraperSource) lets operators add or retire scrapers
// without restarting the scheduler process.
type Source interface {
	GetPeriodicTasks(ctx context.Context) ([]model.PeriodicTask, error)
}

// StaticSource returns a fixed list of descriptors, useful for housekeeping
// jobs and tests.
type StaticSource struct {
	tasks []model.PeriodicTask
}

// NewStaticSource wraps a fixed slice of descriptors.
func NewStaticSource(tasks []model.PeriodicTask) *StaticSource {
	return &StaticSource{tasks: tasks}
}

func (s *StaticSource) GetPeriodicTasks(ctx context.Context) ([]model.PeriodicTask, error) {
	return s.tasks, nil
}

// MultiSource concatenates the descriptors of several sources, so the
// scheduler can be handed one combined view of housekeeping jobs plus
// scraper-driven periodic tasks.
type MultiSource struct {
	sources []Source
}

// NewMultiSource aggregates sources in order.
func NewMultiSource(sources ...Source) *MultiSource {
	return &MultiSource{sources: sources}
}

func (m *MultiSource) GetPeriodicTasks(ctx context.Context) ([]model.PeriodicTask, error) {
	var all []model.PeriodicTask
	for _, s := range m.sources {
		tasks, err := s.GetPeriodicTasks(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, tasks...)
	}
	return all, nil
}
