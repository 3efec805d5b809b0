package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"collabdeck/internal/presentation/model"
)

// MemoryStore keeps documents in process. Documents are deep-copied on the
// way in and out so callers never share state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*model.Presentation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*model.Presentation)}
}

func clone(p *model.Presentation) (*model.Presentation, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("clone presentation %s: %w", p.ID, err)
	}
	var out model.Presentation
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("clone presentation %s: %w", p.ID, err)
	}
	return &out, nil
}

func (s *MemoryStore) Create(ctx context.Context, p *model.Presentation) error {
	if p.ID == "" {
		return fmt.Errorf("presentation id cannot be empty")
	}
	p.Version = 1
	stored, err := clone(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[p.ID]; exists {
		return fmt.Errorf("presentation %s already exists", p.ID)
	}
	s.docs[p.ID] = stored
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*model.Presentation, error) {
	s.mu.RLock()
	stored, ok := s.docs[id]
	s.mu.RUnlock()
	if !ok || stored.Deleted {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(stored)
}

func (s *MemoryStore) Save(ctx context.Context, p *model.Presentation) error {
	next, err := clone(p)
	if err != nil {
		return err
	}
	next.Version = p.Version + 1

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.docs[p.ID]
	if !ok || stored.Deleted {
		return fmt.Errorf("%w: %s", ErrNotFound, p.ID)
	}
	if stored.Version != p.Version {
		return ErrVersionConflict
	}
	s.docs[p.ID] = next
	p.Version = next.Version
	return nil
}

func (s *MemoryStore) ListForUser(ctx context.Context, userID string) ([]model.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.Summary{}
	for _, p := range s.docs {
		if p.Deleted || p.RoleOf(userID) == "" {
			continue
		}
		out = append(out, p.Summarize(userID))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUpdatedAt.Equal(out[j].LastUpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastUpdatedAt.After(out[j].LastUpdatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SoftDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.docs[id]
	if !ok || stored.Deleted {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	stored.Deleted = true
	stored.Version++
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.docs, id)
	return nil
}
