package project

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a thread-safe, in-memory implementation of the Store interface.
type InMemoryStore struct {
	sync.RWMutex
	projects map[uuid.UUID]Project
	recent   []uuid.UUID
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		projects: make(map[uuid.UUID]Project),
	}
}

// Save stores p and puts it at the front of the recent list.
func (s *InMemoryStore) Save(ctx context.Context, p Project) error {
	s.Lock()
	defer s.Unlock()
	s.projects[p.ID] = p
	s.recent = PushRecent(s.recent, p.ID)
	return nil
}

// Get retrieves a project by ID.
func (s *InMemoryStore) Get(ctx context.Context, id uuid.UUID) (Project, error) {
	s.RLock()
	defer s.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return Project{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, nil
}

// Delete removes a project.
func (s *InMemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.projects[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.projects, id)
	return nil
}

// Touch records that a project was opened.
func (s *InMemoryStore) Touch(ctx context.Context, id uuid.UUID) error {
	s.Lock()
	defer s.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	p.LastOpenedAt = time.Now().UTC()
	s.projects[id] = p
	s.recent = PushRecent(s.recent, id)
	return nil
}

// ListRecent returns recently opened projects that still exist.
func (s *InMemoryStore) ListRecent(ctx context.Context, limit int) ([]Project, error) {
	s.RLock()
	defer s.RUnlock()
	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}
	var out []Project
	for _, id := range s.recent {
		if p, ok := s.projects[id]; ok {
			out = append(out, p)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
