package store

import (
	"context"
	"sort"
	"sync"

	"diligence/internal/investigation/models"
	"diligence/pkg/platform/sentinel"
)

// InMemoryStore keeps investigations in a map. Used when no database is
// configured, by the CLI and in tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	items map[string]models.Investigation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{items: make(map[string]models.Investigation)}
}

func (s *InMemoryStore) Save(_ context.Context, inv *models.Investigation) error {
	if err := checkSavable(inv); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[inv.ID] = clone(inv)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id string) (*models.Investigation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.items[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := clone(&inv)
	return &out, nil
}

// List returns summaries newest first.
func (s *InMemoryStore) List(_ context.Context, limit int) ([]models.Summary, error) {
	s.mu.RLock()
	out := make([]models.Summary, 0, len(s.items))
	for _, inv := range s.items {
		out = append(out, inv.Summarize())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// clone copies the slices and the report so callers cannot mutate stored
// state.
func clone(inv *models.Investigation) models.Investigation {
	out := *inv
	out.History = append([]models.Transition(nil), inv.History...)
	out.Outcomes = append([]models.OutcomeSummary(nil), inv.Outcomes...)
	if inv.Report != nil {
		r := *inv.Report
		out.Report = &r
	}
	return out
}
