package periodic

import (
	"context"
	"sync"

	"github.com/scrapeworks/orchestrator/pkg/model"
)

// ScraperRepository is the directory of configured scrapers. Handlers write
// state back through UpdateScraperState; ScraperSource only reads from it.
type ScraperRepository interface {
	ListScrapers(ctx context.Context) ([]model.Scraper, error)

	// UpdateScraperState persists a handler-produced state string against
	// the scraper identified by id and returns the updated record. Returns
	// model.ErrScraperNotFound if id is not registered.
	UpdateScraperState(ctx context.Context, id, state string) (model.Scraper, error)
}

// InMemoryScraperRepository is a mutex-guarded, process-local
// ScraperRepository, suitable for single-replica deployments and tests.
type InMemoryScraperRepository struct {
	mu       sync.Mutex
	scrapers map[string]model.Scraper
}

// NewInMemoryScraperRepository returns an empty repository.
func NewInMemoryScraperRepository() *InMemoryScraperRepository {
	return &InMemoryScraperRepository{scrapers: make(map[string]model.Scraper)}
}

// Put inserts or replaces a scraper definition.
func (r *InMemoryScraperRepository) Put(s model.Scraper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scrapers[s.ID] = s
}

// Remove retires a scraper definition; its periodic task stops appearing on
// the next scheduler tick.
func (r *InMemoryScraperRepository) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.scrapers, id)
}

// UpdateScraperState looks the scraper up, sets its State field and stores
// it back, mirroring the update-then-return-the-record pattern a handler's
// state callback needs.
func (r *InMemoryScraperRepository) UpdateScraperState(ctx context.Context, id, state string) (model.Scraper, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.scrapers[id]
	if !ok {
		return model.Scraper{}, model.ErrScraperNotFound
	}
	s.State = state
	r.scrapers[id] = s
	return s, nil
}

func (r *InMemoryScraperRepository) ListScrapers(ctx context.Context) ([]model.Scraper, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Scraper, 0, len(r.scrapers))
	for _, s := range r.scrapers {
		out = append(out, s)
	}
	return out, nil
}

// ScraperSource adapts a ScraperRepository into the scheduler's Source
// contract: every non-INACTIVE scraper becomes one PeriodicTask descriptor.
type ScraperSource struct {
	repo ScraperRepository
}

// NewScraperSource wraps repo.
func NewScraperSource(repo ScraperRepository) *ScraperSource {
	return &ScraperSource{repo: repo}
}

func (s *ScraperSource) GetPeriodicTasks(ctx context.Context) ([]model.PeriodicTask, error) {
	scrapers, err := s.repo.ListScrapers(ctx)
	if err != nil {
		return nil, err
	}
	tasks := make([]model.PeriodicTask, 0, len(scrapers))
	for _, sc := range scrapers {
		if sc.Schedule == model.ScheduleInactive {
			continue
		}
		tasks = append(tasks, model.PeriodicTask{
			ID:        model.PeriodicTaskID(sc.Name),
			Name:      sc.Name,
			Handler:   sc.Handler,
			Priority:  sc.Priority,
			Payload:   sc.Payload,
			Schedule:  sc.Schedule,
			Crontab:   sc.Crontab,
			Timeout:   sc.Timeout,
			ScraperID: sc.ID,
			State:     sc.State,
		})
	}
	return tasks, nil
}
