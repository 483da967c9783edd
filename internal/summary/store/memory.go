package store

import (
	"context"
	"sort"
	"sync"

	"splitgroups/internal/summary/models"
	"splitgroups/pkg/platform/sentinel"
)

// InMemory keeps summaries in a map. Each operation holds the lock for its
// whole read-modify-write, which gives the same single-key atomicity as the
// Postgres upserts.
type InMemory struct {
	mu        sync.Mutex
	summaries map[string]*models.GroupSummary
}

func NewInMemory() *InMemory {
	return &InMemory{summaries: make(map[string]*models.GroupSummary)}
}

// ReplaceDerivedFields skips snapshots older than the stored derived fields, the
// same guard as the Postgres upsert.
func (s *InMemory) ReplaceDerivedFields(_ context.Context, groupID string, fields models.DerivedFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary, ok := s.summaries[groupID]
	if !ok {
		summary = models.NewAggregateOnly(groupID)
		s.summaries[groupID] = summary
	}
	if fields.UpdatedAt.Before(summary.UpdatedAt) {
		return nil
	}
	fields.Apply(summary)
	return nil
}

func (s *InMemory) IncrementAggregateFields(_ context.Context, groupID string, delta models.AggregateDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary, ok := s.summaries[groupID]
	if !ok {
		summary = models.NewAggregateOnly(groupID)
		s.summaries[groupID] = summary
	}
	delta.Apply(summary)
	return nil
}

func (s *InMemory) FindByGroupID(_ context.Context, groupID string) (*models.GroupSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary, ok := s.summaries[groupID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return summary.Clone(), nil
}

// Delete is idempotent.
func (s *InMemory) Delete(_ context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.summaries, groupID)
	return nil
}

func (s *InMemory) ListGroupIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.summaries))
	for id := range s.summaries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// MarkStale flags an existing summary; absent summaries are left absent.
func (s *InMemory) MarkStale(_ context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if summary, ok := s.summaries[groupID]; ok {
		summary.ExpensesStale = true
	}
	return nil
}
