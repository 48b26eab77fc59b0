package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/conjoint-cli/internal/model"
)

// MemoryStore is an in-memory Store used by tests and throwaway sessions.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]model.Workflow
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{workflows: make(map[string]model.Workflow)}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) Upsert(_ context.Context, w *model.Workflow) error {
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	copied, err := copyWorkflow(w)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID] = *copied
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Workflow, error) {
	s.mu.RLock()
	w, ok := s.workflows[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return copyWorkflow(&w)
}

func (s *MemoryStore) List(_ context.Context, filter WorkflowFilter) ([]model.Workflow, error) {
	s.mu.RLock()
	all := make([]model.Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		if filter.Name != "" && w.Name != filter.Name {
			continue
		}
		copied, err := copyWorkflow(&w)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		copied.Design = nil
		all = append(all, *copied)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(all) {
			return nil, nil
		}
		all = all[filter.Offset:]
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(s.workflows, id)
	return nil
}

// copyWorkflow deep-copies through JSON so callers cannot mutate stored state.
func copyWorkflow(w *model.Workflow) (*model.Workflow, error) {
	raw, err := json.Marshal(w)
	if err != nil {
		return nil, eris.Wrap(err, "memory: marshal workflow")
	}
	var out model.Workflow
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrap(err, "memory: unmarshal workflow")
	}
	out.CreatedAt = w.CreatedAt
	out.UpdatedAt = w.UpdatedAt
	return &out, nil
}
