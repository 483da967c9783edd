package expense

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"splitgroups/internal/platform/cache"
	"splitgroups/internal/platform/messaging"
	"splitgroups/internal/summary/models"
)

type fakeSummaries struct {
	mu       sync.Mutex
	totals   map[string]decimal.Decimal
	counts   map[string]int64
	stale    []string
	applyErr error
}

func newFakeSummaries() *fakeSummaries {
	return &fakeSummaries{totals: map[string]decimal.Decimal{}, counts: map[string]int64{}}
}

func (f *fakeSummaries) ApplyAggregateDelta(_ context.Context, groupID string, delta models.AggregateDelta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.totals[groupID] = f.totals[groupID].Add(delta.Amount)
	f.counts[groupID] += delta.Count
	return nil
}

func (f *fakeSummaries) MarkStale(_ context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stale = append(f.stale, groupID)
	return nil
}

// flakyCache wraps a real cache and fails claims or writes on demand.
type flakyCache struct {
	cache.Cache
	claimErr error
	setErr   error
}

func (c *flakyCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if c.claimErr != nil {
		return false, c.claimErr
	}
	return c.Cache.SetNX(ctx, key, value, ttl)
}

func (c *flakyCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if c.setErr != nil {
		return c.setErr
	}
	return c.Cache.Set(ctx, key, value, ttl)
}

// lockstepCache holds every SetNX caller until n of them have arrived, so
// concurrent deliveries all reach the claim before any of them proceeds.
type lockstepCache struct {
	cache.Cache
	arrived sync.WaitGroup
}

func newLockstepCache(inner cache.Cache, n int) *lockstepCache {
	c := &lockstepCache{Cache: inner}
	c.arrived.Add(n)
	return c
}

func (c *lockstepCache) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	c.arrived.Done()
	c.arrived.Wait()
	return c.Cache.SetNX(ctx, key, value, ttl)
}

type ConsumerSuite struct {
	suite.Suite
	ctx       context.Context
	summaries *fakeSummaries
	cache     *flakyCache
	consumer  *Consumer
}

func TestConsumerSuite(t *testing.T) {
	suite.Run(t, new(ConsumerSuite))
}

func (s *ConsumerSuite) SetupTest() {
	s.ctx = context.Background()
	s.summaries = newFakeSummaries()
	s.cache = &flakyCache{Cache: cache.NewMemory()}
	s.consumer = NewConsumer(s.summaries, s.cache)
}

func expenseCreated(eventID, groupID string, amount int) *messaging.Message {
	return &messaging.Message{
		Topic: "events",
		Value: []byte(fmt.Sprintf(
			`{"type":"expense.created","data":{"expenseId":%q,"groupId":%q,"amount":%d},"timestamp":"2026-03-01T10:00:00Z"}`,
			eventID, groupID, amount)),
	}
}

func (s *ConsumerSuite) TestReplayedEventAppliedOnce() {
	msg := expenseCreated("e1", "g1", 75)

	for range 3 {
		s.Require().NoError(s.consumer.Handle(s.ctx, msg))
	}

	s.Equal("75", s.summaries.totals["g1"].String())
	s.Equal(int64(1), s.summaries.counts["g1"])

	marker, seen, err := s.cache.Get(s.ctx, cache.ProcessedEventKey("e1"))
	s.Require().NoError(err)
	s.True(seen)
	s.Equal("done", marker)
}

func (s *ConsumerSuite) TestConcurrentDeliveriesApplyOnce() {
	const deliveries = 2
	consumer := NewConsumer(s.summaries, newLockstepCache(cache.NewMemory(), deliveries))

	var wg sync.WaitGroup
	errs := make([]error, deliveries)
	for i := range deliveries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = consumer.Handle(s.ctx, expenseCreated("e1", "g1", 75))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		s.Require().NoError(err)
	}
	s.Equal("75", s.summaries.totals["g1"].String())
	s.Equal(int64(1), s.summaries.counts["g1"])
}

func (s *ConsumerSuite) TestInFlightClaimSkipsDelivery() {
	_, err := s.cache.SetNX(s.ctx, cache.ProcessedEventKey("e1"), "pending", ClaimTTL)
	s.Require().NoError(err)

	s.Require().NoError(s.consumer.Handle(s.ctx, expenseCreated("e1", "g1", 75)))

	s.Empty(s.summaries.totals)
}

func (s *ConsumerSuite) TestDistinctEventsAccumulate() {
	s.Require().NoError(s.consumer.Handle(s.ctx, expenseCreated("e1", "g1", 75)))
	s.Require().NoError(s.consumer.Handle(s.ctx, expenseCreated("e2", "g1", 25)))

	s.Equal("100", s.summaries.totals["g1"].String())
	s.Equal(int64(2), s.summaries.counts["g1"])
}

func (s *ConsumerSuite) TestUnknownAndMalformedAreDiscarded() {
	for _, raw := range []string{
		`{"type":"expense.deleted","data":{"expenseId":"e1","groupId":"g1","amount":1}}`,
		`{"type":"expense.created","data":{"groupId":"g1","amount":1}}`,
		`not json`,
	} {
		err := s.consumer.Handle(s.ctx, &messaging.Message{Topic: "events", Value: []byte(raw)})
		s.NoError(err, raw)
	}
	s.Empty(s.summaries.totals)
}

func (s *ConsumerSuite) TestClaimFailureAppliesWithoutDedup() {
	s.cache.claimErr = errors.New("redis down")
	msg := expenseCreated("e1", "g1", 10)

	s.Require().NoError(s.consumer.Handle(s.ctx, msg))
	s.Require().NoError(s.consumer.Handle(s.ctx, msg))

	s.Equal("20", s.summaries.totals["g1"].String(), "degraded mode may double count")
}

func (s *ConsumerSuite) TestApplyFailureReleasesClaim() {
	s.summaries.applyErr = errors.New("db down")

	err := s.consumer.Handle(s.ctx, expenseCreated("e1", "g1", 10))
	s.Require().Error(err)

	_, seen, err := s.cache.Get(s.ctx, cache.ProcessedEventKey("e1"))
	s.Require().NoError(err)
	s.False(seen)

	s.summaries.applyErr = nil
	s.Require().NoError(s.consumer.Handle(s.ctx, expenseCreated("e1", "g1", 10)))
	s.Equal("10", s.summaries.totals["g1"].String())
}

func (s *ConsumerSuite) TestMarkerWriteFailureIsNotRetried() {
	s.cache.setErr = errors.New("redis down")

	err := s.consumer.Handle(s.ctx, expenseCreated("e1", "g1", 10))
	s.Require().NoError(err)
	s.Equal("10", s.summaries.totals["g1"].String())

	s.cache.setErr = nil
	marker, seen, err := s.cache.Get(s.ctx, cache.ProcessedEventKey("e1"))
	s.Require().NoError(err)
	s.True(seen)
	s.Equal("pending", marker, "the claim still guards redeliveries until it expires")

	s.Require().NoError(s.consumer.Handle(s.ctx, expenseCreated("e1", "g1", 10)))
	s.Equal("10", s.summaries.totals["g1"].String())
}

func (s *ConsumerSuite) TestSummarySnapshotEventsDedupOnEnvelopeID() {
	msg := &messaging.Message{Topic: "events", Value: []byte(
		`{"type":"expenses.group.summary.updated","id":"s1","groupId":"g1","payload":{"totalAmount":"40.5","expensesCount":3}}`)}

	s.Require().NoError(s.consumer.Handle(s.ctx, msg))
	s.Require().NoError(s.consumer.Handle(s.ctx, msg))

	s.Equal("40.5", s.summaries.totals["g1"].String())
	s.Equal(int64(3), s.summaries.counts["g1"])
}

func (s *ConsumerSuite) TestRetryExhaustionMarksStale() {
	s.summaries.applyErr = errors.New("db down")
	handler := messaging.Retry(s.consumer,
		messaging.WithMaxRetries(2),
		messaging.WithBackoff(time.Millisecond, time.Millisecond),
		messaging.WithOnExhausted(s.consumer.MarkStaleOnExhausted),
	)

	s.Require().NoError(handler.Handle(s.ctx, expenseCreated("e1", "g1", 10)))
	s.Equal([]string{"g1"}, s.summaries.stale)
}
