package store

import (
	"context"
	"sort"
	"sync"

	"splitgroups/internal/group/models"
	"splitgroups/pkg/platform/sentinel"
)

// InMemory is a map-backed group store for tests and local runs.
type InMemory struct {
	mu     sync.RWMutex
	groups map[string]*models.Group
}

func NewInMemory() *InMemory {
	return &InMemory{groups: make(map[string]*models.Group)}
}

func (s *InMemory) FindByID(_ context.Context, id string) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return g.Clone(), nil
}

// FindByMember returns the member's groups ordered by creation time.
func (s *InMemory) FindByMember(_ context.Context, memberID string) ([]*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Group, 0)
	for _, g := range s.groups {
		if g.IsMember(memberID) {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Save inserts or replaces the group.
func (s *InMemory) Save(_ context.Context, g *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = g.Clone()
	return nil
}

func (s *InMemory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.groups, id)
	return nil
}

func (s *InMemory) ListIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.groups))
	for id := range s.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
