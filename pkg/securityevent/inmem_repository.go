package securityevent

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// InMemRepository implements Repository using an in-memory slice
type InMemRepository struct {
	events []SecurityEvent
	mu     sync.Mutex
}

// NewInMemRepository creates a new in-memory security event repository
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{}
}

func (r *InMemRepository) Create(ctx context.Context, event SecurityEvent) (SecurityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.Metadata = copyMetadata(event.Metadata)
	r.events = append(r.events, event)
	return event, nil
}

func (r *InMemRepository) Count(ctx context.Context, filter Filter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, e := range r.events {
		if filter.matches(e) {
			count++
		}
	}
	return count, nil
}

func (r *InMemRepository) List(ctx context.Context, filter Filter) ([]SecurityEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []SecurityEvent
	for _, e := range r.events {
		if filter.matches(e) {
			e.Metadata = copyMetadata(e.Metadata)
			result = append(result, e)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
