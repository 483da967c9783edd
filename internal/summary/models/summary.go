package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	groupmodels "splitgroups/internal/group/models"
)

// DefaultCurrency applies until an expense event names another one.
const DefaultCurrency = "EUR"

// GroupSummary is the read-optimized view of a group, keyed by group ID.
//
// Derived fields (Name through UpdatedAt) are copied from the Group on every
// local write. Aggregate fields (TotalAmount through ExpensesStale) only move
// through AggregateDelta increments from the expense stream.
type GroupSummary struct {
	GroupID      string    `json:"groupId"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	Members      []string  `json:"members"`
	MembersCount int       `json:"membersCount"`
	Owner        string    `json:"owner"`
	ImageURL     string    `json:"imageUrl"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	TotalAmount   decimal.Decimal `json:"totalAmount"`
	ExpensesCount int64           `json:"expensesCount"`
	LastExpenseAt *time.Time      `json:"lastExpenseAt,omitempty"`
	Currency      string          `json:"currency"`
	ExpensesStale bool            `json:"expensesStale,omitempty"`
}

// HasDerived reports whether derived fields were ever written. A summary
// created by an early expense event has aggregates only.
func (s *GroupSummary) HasDerived() bool {
	return s.Owner != ""
}

// NewAggregateOnly returns a summary holding zero aggregates and no derived fields.
func NewAggregateOnly(groupID string) *GroupSummary {
	return &GroupSummary{
		GroupID:     groupID,
		Members:     []string{},
		TotalAmount: decimal.Zero,
		Currency:    DefaultCurrency,
	}
}

// Clone returns a deep copy.
func (s *GroupSummary) Clone() *GroupSummary {
	if s == nil {
		return nil
	}
	c := *s
	c.Members = slices.Clone(s.Members)
	if s.Description != nil {
		d := *s.Description
		c.Description = &d
	}
	if s.LastExpenseAt != nil {
		t := *s.LastExpenseAt
		c.LastExpenseAt = &t
	}
	return &c
}

// DerivedFields is the subset of GroupSummary owned by the group write path.
type DerivedFields struct {
	Name        string
	Description *string
	Members     []string
	Owner       string
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DerivedFromGroup projects a group into its summary fields. UpdatedAt follows
// the group's own last modification, so re-projecting an unchanged group is a no-op.
func DerivedFromGroup(g *groupmodels.Group) DerivedFields {
	return DerivedFields{
		Name:        g.Name,
		Description: g.Description,
		Members:     slices.Clone(g.Members),
		Owner:       g.OwnerID,
		ImageURL:    g.ImageURL,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

// MembersCount is always len(Members).
func (d DerivedFields) MembersCount() int {
	return len(d.Members)
}

// Apply overwrites the derived subset of s, leaving aggregates untouched.
func (d DerivedFields) Apply(s *GroupSummary) {
	s.Name = d.Name
	s.Description = d.Description
	s.Members = slices.Clone(d.Members)
	if s.Members == nil {
		s.Members = []string{}
	}
	s.MembersCount = d.MembersCount()
	s.Owner = d.Owner
	s.ImageURL = d.ImageURL
	s.CreatedAt = d.CreatedAt
	s.UpdatedAt = d.UpdatedAt
}

// AggregateDelta is one increment from the expense stream. Amount and Count
// add; LastExpenseAt and Currency, when set, replace (last write wins).
type AggregateDelta struct {
	Amount        decimal.Decimal
	Count         int64
	LastExpenseAt *time.Time
	Currency      string
}

// Apply adds the delta to s and clears the stale flag.
func (d AggregateDelta) Apply(s *GroupSummary) {
	s.TotalAmount = s.TotalAmount.Add(d.Amount)
	s.ExpensesCount += d.Count
	if d.LastExpenseAt != nil {
		t := *d.LastExpenseAt
		s.LastExpenseAt = &t
	}
	if d.Currency != "" {
		s.Currency = d.Currency
	}
	s.ExpensesStale = false
}
