package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"splitgroups/internal/summary/models"
	"splitgroups/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func derived(name string, members ...string) models.DerivedFields {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.DerivedFields{
		Name:      name,
		Members:   members,
		Owner:     members[0],
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *InMemoryStoreSuite) TestDerivedUpsertKeepsAggregates() {
	s.Require().NoError(s.store.IncrementAggregateFields(s.ctx, "g1", models.AggregateDelta{
		Amount: decimal.NewFromInt(40), Count: 2, Currency: "USD",
	}))
	s.Require().NoError(s.store.ReplaceDerivedFields(s.ctx, "g1", derived("Trip", "u1", "u2")))
	s.Require().NoError(s.store.ReplaceDerivedFields(s.ctx, "g1", derived("Trip 2", "u1")))

	got, err := s.store.FindByGroupID(s.ctx, "g1")
	s.Require().NoError(err)
	s.Equal("Trip 2", got.Name)
	s.Equal(1, got.MembersCount)
	s.True(decimal.NewFromInt(40).Equal(got.TotalAmount))
	s.Equal(int64(2), got.ExpensesCount)
	s.Equal("USD", got.Currency)
}

func (s *InMemoryStoreSuite) TestDerivedUpsertIgnoresOlderSnapshot() {
	newer := derived("Renamed", "u1", "u2")
	newer.UpdatedAt = newer.UpdatedAt.Add(time.Minute)
	s.Require().NoError(s.store.ReplaceDerivedFields(s.ctx, "g1", newer))
	s.Require().NoError(s.store.ReplaceDerivedFields(s.ctx, "g1", derived("Trip", "u1")))

	got, err := s.store.FindByGroupID(s.ctx, "g1")
	s.Require().NoError(err)
	s.Equal("Renamed", got.Name)
	s.Equal([]string{"u1", "u2"}, got.Members)
}

func (s *InMemoryStoreSuite) TestIncrementCreatesAggregateOnlyRecord() {
	s.Require().NoError(s.store.IncrementAggregateFields(s.ctx, "g1", models.AggregateDelta{
		Amount: decimal.NewFromInt(5), Count: 1,
	}))

	got, err := s.store.FindByGroupID(s.ctx, "g1")
	s.Require().NoError(err)
	s.False(got.HasDerived())
	s.Equal(models.DefaultCurrency, got.Currency)
}

func (s *InMemoryStoreSuite) TestConcurrentIncrementsSum() {
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.store.IncrementAggregateFields(s.ctx, "g1", models.AggregateDelta{
				Amount: decimal.RequireFromString("0.01"), Count: 1,
			})
		}()
	}
	wg.Wait()

	got, err := s.store.FindByGroupID(s.ctx, "g1")
	s.Require().NoError(err)
	s.Equal("1", got.TotalAmount.String())
	s.Equal(int64(100), got.ExpensesCount)
}

func (s *InMemoryStoreSuite) TestStaleDeleteAndList() {
	s.Require().NoError(s.store.ReplaceDerivedFields(s.ctx, "b", derived("B", "u1")))
	s.Require().NoError(s.store.ReplaceDerivedFields(s.ctx, "a", derived("A", "u1")))

	s.Require().NoError(s.store.MarkStale(s.ctx, "a"))
	s.Require().NoError(s.store.MarkStale(s.ctx, "missing"))
	got, err := s.store.FindByGroupID(s.ctx, "a")
	s.Require().NoError(err)
	s.True(got.ExpensesStale)

	ids, err := s.store.ListGroupIDs(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"a", "b"}, ids)

	s.Require().NoError(s.store.Delete(s.ctx, "a"))
	s.Require().NoError(s.store.Delete(s.ctx, "a"))
	_, err = s.store.FindByGroupID(s.ctx, "a")
	s.ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByGroupID(s.ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
