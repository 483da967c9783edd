package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	groupmodels "splitgroups/internal/group/models"
)

func TestDerivedApplyLeavesAggregates(t *testing.T) {
	s := NewAggregateOnly("g1")
	AggregateDelta{Amount: decimal.RequireFromString("75"), Count: 3}.Apply(s)
	require.False(t, s.HasDerived())

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	g, err := groupmodels.NewGroup("g1", "Trip", nil, "u1", "img", now)
	require.NoError(t, err)
	g.AddMember("u2", now)

	DerivedFromGroup(g).Apply(s)

	assert.True(t, s.HasDerived())
	assert.Equal(t, 2, s.MembersCount)
	assert.Equal(t, []string{"u1", "u2"}, s.Members)
	assert.True(t, decimal.RequireFromString("75").Equal(s.TotalAmount))
	assert.Equal(t, int64(3), s.ExpensesCount)
}

func TestAggregateApplyIsCommutative(t *testing.T) {
	ts := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	d1 := AggregateDelta{Amount: decimal.RequireFromString("10.10"), Count: 1}
	d2 := AggregateDelta{Amount: decimal.RequireFromString("0.20"), Count: 2, LastExpenseAt: &ts}

	a := NewAggregateOnly("g1")
	d1.Apply(a)
	d2.Apply(a)

	b := NewAggregateOnly("g1")
	d2.Apply(b)
	d1.Apply(b)

	assert.True(t, a.TotalAmount.Equal(b.TotalAmount))
	assert.Equal(t, "10.3", a.TotalAmount.String())
	assert.Equal(t, a.ExpensesCount, b.ExpensesCount)
}

func TestAggregateApplyClearsStaleAndKeepsCurrency(t *testing.T) {
	s := NewAggregateOnly("g1")
	s.ExpensesStale = true
	AggregateDelta{Amount: decimal.NewFromInt(1), Count: 1}.Apply(s)

	assert.False(t, s.ExpensesStale)
	assert.Equal(t, DefaultCurrency, s.Currency)
	assert.Nil(t, s.LastExpenseAt)

	AggregateDelta{Currency: "USD"}.Apply(s)
	assert.Equal(t, "USD", s.Currency)
}

func TestSummaryJSONShape(t *testing.T) {
	s := NewAggregateOnly("g1")
	AggregateDelta{Amount: decimal.RequireFromString("12.50"), Count: 1}.Apply(s)

	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "g1", m["groupId"])
	assert.Equal(t, "12.5", m["totalAmount"])
	assert.Equal(t, float64(1), m["expensesCount"])
	assert.NotContains(t, m, "lastExpenseAt")
	assert.NotContains(t, m, "expensesStale")
}
