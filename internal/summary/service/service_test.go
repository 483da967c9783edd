package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	groupmodels "splitgroups/internal/group/models"
	groupstore "splitgroups/internal/group/store"
	"splitgroups/internal/platform/cache"
	"splitgroups/internal/summary/models"
	summarystore "splitgroups/internal/summary/store"
	dErrors "splitgroups/pkg/domain-errors"
	"splitgroups/pkg/platform/sentinel"
)

type SummaryServiceSuite struct {
	suite.Suite
	ctx       context.Context
	groups    *groupstore.InMemory
	summaries *summarystore.InMemory
	cache     *cache.MemoryCache
	service   *Service
}

func TestSummaryServiceSuite(t *testing.T) {
	suite.Run(t, new(SummaryServiceSuite))
}

func (s *SummaryServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.groups = groupstore.NewInMemory()
	s.summaries = summarystore.NewInMemory()
	s.cache = cache.NewMemory()
	s.service = New(s.summaries, s.groups, s.cache)
}

func (s *SummaryServiceSuite) saveGroup(id string, members ...string) *groupmodels.Group {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g, err := groupmodels.NewGroup(id, "Group "+id, nil, members[0], "https://img", now)
	s.Require().NoError(err)
	for _, m := range members[1:] {
		g.AddMember(m, now)
	}
	s.Require().NoError(s.groups.Save(s.ctx, g))
	return g
}

func (s *SummaryServiceSuite) delta(amount string, count int64) models.AggregateDelta {
	return models.AggregateDelta{Amount: decimal.RequireFromString(amount), Count: count}
}

func (s *SummaryServiceSuite) TestUpsertDerivedNeverResetsAggregates() {
	g := s.saveGroup("g1", "u1")
	s.Require().NoError(s.service.ApplyAggregateDelta(s.ctx, "g1", s.delta("30", 2)))

	g.AddMember("u2", time.Now())
	s.Require().NoError(s.service.UpsertDerived(s.ctx, g))

	got, err := s.service.Read(s.ctx, "g1")
	s.Require().NoError(err)
	s.Equal(2, got.MembersCount)
	s.Equal("30", got.TotalAmount.String())
	s.Equal(int64(2), got.ExpensesCount)
}

func (s *SummaryServiceSuite) TestAggregateDeltasCommute() {
	s.saveGroup("a", "u1")
	s.saveGroup("b", "u1")
	deltas := []models.AggregateDelta{s.delta("10.10", 1), s.delta("0.2", 1), s.delta("5", 3)}

	for _, d := range deltas {
		s.Require().NoError(s.service.ApplyAggregateDelta(s.ctx, "a", d))
	}
	for i := len(deltas) - 1; i >= 0; i-- {
		s.Require().NoError(s.service.ApplyAggregateDelta(s.ctx, "b", deltas[i]))
	}

	a, err := s.service.Read(s.ctx, "a")
	s.Require().NoError(err)
	b, err := s.service.Read(s.ctx, "b")
	s.Require().NoError(err)
	s.True(a.TotalAmount.Equal(b.TotalAmount))
	s.Equal(a.ExpensesCount, b.ExpensesCount)
	s.Equal("15.3", a.TotalAmount.String())
}

func (s *SummaryServiceSuite) TestReadMaterializesMissingSummary() {
	s.saveGroup("g1", "u1", "u2")

	got, err := s.service.Read(s.ctx, "g1")
	s.Require().NoError(err)
	s.Equal("Group g1", got.Name)
	s.Equal(2, got.MembersCount)
	s.True(got.TotalAmount.IsZero())
	s.Equal(models.DefaultCurrency, got.Currency)

	_, found, err := s.cache.Get(s.ctx, cache.SummaryKey("g1"))
	s.Require().NoError(err)
	s.True(found, "read populates the cache")
}

func (s *SummaryServiceSuite) TestReadFillsDerivedFieldsOfEarlyEventSummary() {
	s.Require().NoError(s.service.ApplyAggregateDelta(s.ctx, "g1", s.delta("12", 1)))
	s.saveGroup("g1", "u1")

	got, err := s.service.Read(s.ctx, "g1")
	s.Require().NoError(err)
	s.Equal("u1", got.Owner)
	s.Equal("12", got.TotalAmount.String())
}

func (s *SummaryServiceSuite) TestReadUnknownGroupIsNotFound() {
	_, err := s.service.Read(s.ctx, "missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	// Aggregates alone do not make a group exist.
	s.Require().NoError(s.service.ApplyAggregateDelta(s.ctx, "orphan", s.delta("1", 1)))
	_, err = s.service.Read(s.ctx, "orphan")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *SummaryServiceSuite) TestReadServesCacheUntilInvalidated() {
	s.saveGroup("g1", "u1")
	_, err := s.service.Read(s.ctx, "g1")
	s.Require().NoError(err)

	// A write that bypasses the service is invisible until the key goes away.
	s.Require().NoError(s.summaries.IncrementAggregateFields(s.ctx, "g1", s.delta("99", 1)))
	cached, err := s.service.Read(s.ctx, "g1")
	s.Require().NoError(err)
	s.True(cached.TotalAmount.IsZero())

	s.Require().NoError(s.service.ApplyAggregateDelta(s.ctx, "g1", s.delta("1", 1)))
	fresh, err := s.service.Read(s.ctx, "g1")
	s.Require().NoError(err)
	s.Equal("100", fresh.TotalAmount.String())
}

func (s *SummaryServiceSuite) TestRemoveThenReadIsNotFound() {
	s.saveGroup("g1", "u1")
	_, err := s.service.Read(s.ctx, "g1")
	s.Require().NoError(err)

	s.Require().NoError(s.groups.Delete(s.ctx, "g1"))
	s.Require().NoError(s.service.Remove(s.ctx, "g1"))

	_, err = s.service.Read(s.ctx, "g1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *SummaryServiceSuite) TestMarkStaleClearedByNextDelta() {
	s.saveGroup("g1", "u1")
	s.Require().NoError(s.service.UpsertDerived(s.ctx, mustFind(s, "g1")))
	s.Require().NoError(s.service.MarkStale(s.ctx, "g1"))

	got, err := s.service.Read(s.ctx, "g1")
	s.Require().NoError(err)
	s.True(got.ExpensesStale)

	s.Require().NoError(s.service.ApplyAggregateDelta(s.ctx, "g1", s.delta("1", 1)))
	got, err = s.service.Read(s.ctx, "g1")
	s.Require().NoError(err)
	s.False(got.ExpensesStale)
}

func (s *SummaryServiceSuite) TestReconcileRepairsAndRemovesOrphans() {
	g := s.saveGroup("g1", "u1")
	s.Require().NoError(s.service.UpsertDerived(s.ctx, g))

	// Primary write committed but the summary upsert was lost.
	g.AddMember("u2", g.UpdatedAt.Add(time.Minute))
	s.Require().NoError(s.groups.Save(s.ctx, g))

	s.Require().NoError(s.service.ApplyAggregateDelta(s.ctx, "gone", s.delta("3", 1)))

	result, err := s.service.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(ReconcileResult{Reconciled: 1, Orphans: 1}, result)

	got, err := s.service.Read(s.ctx, "g1")
	s.Require().NoError(err)
	s.Equal(2, got.MembersCount)

	ids, err := s.summaries.ListGroupIDs(s.ctx)
	s.Require().NoError(err)
	s.Equal([]string{"g1"}, ids)
}

func (s *SummaryServiceSuite) TestReconcileDoesNotResurrectGroupDeletedMidPass() {
	g := s.saveGroup("g1", "u1", "u2")
	s.Require().NoError(s.service.UpsertDerived(s.ctx, g))

	groups := &interleavedGroups{InMemory: s.groups}
	svc := New(s.summaries, groups, s.cache)
	groups.afterFind = func() {
		s.Require().NoError(s.groups.Delete(s.ctx, "g1"))
		s.Require().NoError(svc.Remove(s.ctx, "g1"))
	}

	result, err := svc.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(ReconcileResult{}, result)

	_, err = svc.Read(s.ctx, "g1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "deleted group reads NotFound, got %v", err)
	ids, err := s.summaries.ListGroupIDs(s.ctx)
	s.Require().NoError(err)
	s.Empty(ids)
}

func (s *SummaryServiceSuite) TestReconcileKeepsNewerDerivedFields() {
	g := s.saveGroup("g1", "u1")
	s.Require().NoError(s.service.UpsertDerived(s.ctx, g))

	groups := &interleavedGroups{InMemory: s.groups}
	svc := New(s.summaries, groups, s.cache)
	groups.afterFind = func() {
		newer := mustFind(s, "g1")
		newer.AddMember("u2", newer.UpdatedAt.Add(time.Minute))
		s.Require().NoError(s.groups.Save(s.ctx, newer))
		s.Require().NoError(svc.UpsertDerived(s.ctx, newer))
	}

	_, err := svc.Reconcile(s.ctx)
	s.Require().NoError(err)

	got, err := svc.Read(s.ctx, "g1")
	s.Require().NoError(err)
	s.Equal([]string{"u1", "u2"}, got.Members)
}

func (s *SummaryServiceSuite) TestUpsertDerivedAfterDeletionLeavesNoSummary() {
	g := s.saveGroup("g1", "u1")
	s.Require().NoError(s.groups.Delete(s.ctx, "g1"))
	s.Require().NoError(s.service.Remove(s.ctx, "g1"))

	// A write path that read g before the delete finishes its summary sync late.
	s.Require().NoError(s.service.UpsertDerived(s.ctx, g))

	_, err := s.summaries.FindByGroupID(s.ctx, "g1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SummaryServiceSuite) TestLazyMaterializationOfGroupDeletedMidRead() {
	s.saveGroup("g1", "u1")

	groups := &interleavedGroups{InMemory: s.groups}
	svc := New(s.summaries, groups, s.cache)
	groups.afterFind = func() {
		s.Require().NoError(s.groups.Delete(s.ctx, "g1"))
		s.Require().NoError(svc.Remove(s.ctx, "g1"))
	}

	_, err := svc.Read(s.ctx, "g1")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.summaries.FindByGroupID(s.ctx, "g1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SummaryServiceSuite) TestCacheFailuresDoNotFailWrites() {
	svc := New(s.summaries, s.groups, failingCache{})
	g := s.saveGroup("g1", "u1")

	s.Require().NoError(svc.UpsertDerived(s.ctx, g))
	s.Require().NoError(svc.ApplyAggregateDelta(s.ctx, "g1", s.delta("1", 1)))

	got, err := svc.Read(s.ctx, "g1")
	s.Require().NoError(err, "read degrades to the store")
	s.Equal("1", got.TotalAmount.String())
}

func mustFind(s *SummaryServiceSuite, id string) *groupmodels.Group {
	g, err := s.groups.FindByID(s.ctx, id)
	s.Require().NoError(err)
	return g
}

// interleavedGroups runs afterFind once, right after the first FindByID hands
// out its snapshot, to land a concurrent group write at that point.
type interleavedGroups struct {
	*groupstore.InMemory
	afterFind func()
}

func (g *interleavedGroups) FindByID(ctx context.Context, id string) (*groupmodels.Group, error) {
	group, err := g.InMemory.FindByID(ctx, id)
	if hook := g.afterFind; hook != nil {
		g.afterFind = nil
		hook()
	}
	return group, err
}

type failingCache struct{}

var errCacheDown = errors.New("cache down")

func (failingCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errCacheDown
}
func (failingCache) Set(context.Context, string, string, time.Duration) error { return errCacheDown }
func (failingCache) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errCacheDown
}
func (failingCache) Delete(context.Context, ...string) error { return errCacheDown }
