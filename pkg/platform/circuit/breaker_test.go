package circuit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestBreaker_InitialState(t *testing.T) {
	b := New("test")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "test", b.Name())
	assert.True(t, b.CanRequest())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New("test", WithFailureThreshold(3))

	// First two failures don't open
	change := b.RecordFailure()
	assert.False(t, change.Opened)
	change = b.RecordFailure()
	assert.False(t, change.Opened)
	assert.True(t, b.CanRequest())

	// Third failure opens the circuit
	change = b.RecordFailure()
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())
	assert.False(t, b.CanRequest())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("test", WithFailureThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())

	change := b.RecordSuccess()
	assert.Equal(t, StateClosed, change.To)
	assert.Equal(t, 0, b.Failures())

	// Two more failures don't open (count was reset)
	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())

	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreaker_OpenRefusesUntilTimeout(t *testing.T) {
	clock := newFakeClock()
	b := New("test", WithFailureThreshold(1), WithTimeout(time.Second), WithClock(clock.Now))

	b.RecordFailure()
	require.True(t, b.IsOpen())

	clock.Advance(999 * time.Millisecond)
	assert.False(t, b.CanRequest())
	assert.Equal(t, StateOpen, b.State())

	clock.Advance(time.Millisecond)
	assert.True(t, b.CanRequest(), "probe allowed once timeout has elapsed")
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_FailureWhileOpenRefreshesTimestamp(t *testing.T) {
	clock := newFakeClock()
	b := New("test", WithFailureThreshold(1), WithTimeout(time.Second), WithClock(clock.Now))

	b.RecordFailure()
	clock.Advance(800 * time.Millisecond)

	change := b.RecordFailure()
	assert.False(t, change.Opened, "already open, no state change")
	assert.Equal(t, StateOpen, change.To)

	clock.Advance(800 * time.Millisecond)
	assert.False(t, b.CanRequest(), "cooldown restarts from the latest failure")

	clock.Advance(200 * time.Millisecond)
	assert.True(t, b.CanRequest())
}

func TestBreaker_HalfOpenTransitions(t *testing.T) {
	open := func(t *testing.T) (*Breaker, *fakeClock) {
		t.Helper()
		clock := newFakeClock()
		b := New("test", WithFailureThreshold(2), WithTimeout(time.Second), WithClock(clock.Now))
		b.RecordFailure()
		b.RecordFailure()
		clock.Advance(time.Second)
		require.True(t, b.CanRequest())
		require.Equal(t, StateHalfOpen, b.State())
		return b, clock
	}

	t.Run("success closes and zeroes the counter", func(t *testing.T) {
		b, _ := open(t)
		change := b.RecordSuccess()
		assert.True(t, change.Closed)
		assert.Equal(t, StateClosed, b.State())
		assert.Equal(t, 0, b.Failures())
		assert.True(t, b.CanRequest())
	})

	t.Run("failure reopens", func(t *testing.T) {
		b, _ := open(t)
		change := b.RecordFailure()
		assert.True(t, change.Opened)
		assert.Equal(t, StateOpen, b.State())
		assert.False(t, b.CanRequest())
	})

	t.Run("only one probe while half-open", func(t *testing.T) {
		b, _ := open(t)
		assert.False(t, b.CanRequest())
		assert.Equal(t, StateHalfOpen, b.State())
	})

	t.Run("unreported probe is replaced after another timeout", func(t *testing.T) {
		b, clock := open(t)
		clock.Advance(time.Second)
		assert.True(t, b.CanRequest())
		assert.Equal(t, StateHalfOpen, b.State())
	})
}

// threshold=3, timeout=1000ms: three failures open, immediate check refused,
// check after 1100ms probes, failed probe reopens.
func TestBreaker_ThresholdThreeTimeoutOneSecond(t *testing.T) {
	clock := newFakeClock()
	b := New("photos", WithFailureThreshold(3), WithTimeout(1000*time.Millisecond), WithClock(clock.Now))

	b.RecordFailure()
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.CanRequest())

	clock.Advance(1100 * time.Millisecond)
	assert.True(t, b.CanRequest())
	assert.Equal(t, StateHalfOpen, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_Reset(t *testing.T) {
	b := New("test", WithFailureThreshold(1))

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Failures())
}

func TestBreaker_ObserverSeesTransitions(t *testing.T) {
	clock := newFakeClock()
	var seen []StateChange
	b := New("identity",
		WithFailureThreshold(1),
		WithTimeout(time.Second),
		WithClock(clock.Now),
		WithStateObserver(func(name string, change StateChange) {
			assert.Equal(t, "identity", name)
			seen = append(seen, change)
		}),
	)

	b.RecordSuccess() // no transition
	b.RecordFailure()
	clock.Advance(time.Second)
	b.CanRequest()
	b.RecordSuccess()

	require.Len(t, seen, 3)
	assert.Equal(t, StateChange{From: StateClosed, To: StateOpen, Opened: true}, seen[0])
	assert.Equal(t, StateChange{From: StateOpen, To: StateHalfOpen}, seen[1])
	assert.Equal(t, StateChange{From: StateHalfOpen, To: StateClosed, Closed: true}, seen[2])
}

func TestBreaker_ConcurrentCallersGetSingleProbe(t *testing.T) {
	clock := newFakeClock()
	b := New("test", WithFailureThreshold(1), WithTimeout(time.Second), WithClock(clock.Now))
	b.RecordFailure()
	clock.Advance(time.Second)

	const callers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if b.CanRequest() {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
	assert.Equal(t, StateHalfOpen, b.State())
}
