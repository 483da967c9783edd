package models

import (
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	dErrors "splitgroups/pkg/domain-errors"
)

// Lengths are counted in characters (runes), not bytes.
const (
	maxNameLength        = 100
	maxDescriptionLength = 500
)

// Group is the aggregate root stored in the primary store.
//
// Invariants:
//   - Name is non-empty after trimming and at most 100 characters
//   - OwnerID is non-empty and is always a member
//   - Members holds no duplicates
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	OwnerID     string    `json:"owner"`
	Members     []string  `json:"members"`
	ImageURL    string    `json:"imageUrl"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewGroup builds a group owned by ownerID with the owner as sole member.
func NewGroup(id, name string, description *string, ownerID, imageURL string, now time.Time) (*Group, error) {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	description = normalizeDescription(description)
	if err := validateDescription(description); err != nil {
		return nil, err
	}
	if ownerID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "group owner cannot be empty")
	}
	return &Group{
		ID:          id,
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		Members:     []string{ownerID},
		ImageURL:    imageURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (g *Group) IsMember(userID string) bool {
	return slices.Contains(g.Members, userID)
}

func (g *Group) IsOwner(userID string) bool {
	return g.OwnerID == userID
}

// AddMember appends userID. Returns false when already a member (no-op).
func (g *Group) AddMember(userID string, now time.Time) bool {
	if userID == "" || g.IsMember(userID) {
		return false
	}
	g.Members = append(g.Members, userID)
	g.UpdatedAt = now
	return true
}

// RemoveMember drops userID. Returns false when not a member (no-op).
// The owner can never be removed.
func (g *Group) RemoveMember(userID string, now time.Time) (bool, error) {
	if userID == g.OwnerID {
		return false, dErrors.New(dErrors.CodeInvariantViolation, "the owner cannot leave the group")
	}
	idx := slices.Index(g.Members, userID)
	if idx < 0 {
		return false, nil
	}
	g.Members = slices.Delete(g.Members, idx, idx+1)
	g.UpdatedAt = now
	return true, nil
}

// ApplyDetails sets name and/or description. Returns false when nothing changed.
func (g *Group) ApplyDetails(name, description *string, now time.Time) (bool, error) {
	changed := false
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if err := validateName(trimmed); err != nil {
			return false, err
		}
		if trimmed != g.Name {
			g.Name = trimmed
			changed = true
		}
	}
	if description != nil {
		desc := normalizeDescription(description)
		if err := validateDescription(desc); err != nil {
			return false, err
		}
		if !equalOptional(desc, g.Description) {
			g.Description = desc
			changed = true
		}
	}
	if changed {
		g.UpdatedAt = now
	}
	return changed, nil
}

// Clone returns a deep copy, so stores never share member slices with callers.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	c := *g
	c.Members = slices.Clone(g.Members)
	if g.Description != nil {
		d := *g.Description
		c.Description = &d
	}
	return &c
}

func validateName(name string) error {
	if name == "" {
		return dErrors.New(dErrors.CodeValidation, "group name cannot be empty")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return dErrors.New(dErrors.CodeValidation, "group name must be 100 characters or less")
	}
	return nil
}

func validateDescription(description *string) error {
	if description != nil && utf8.RuneCountInString(*description) > maxDescriptionLength {
		return dErrors.New(dErrors.CodeValidation, "group description must be 500 characters or less")
	}
	return nil
}

// normalizeDescription trims and maps an empty description to nil.
func normalizeDescription(description *string) *string {
	if description == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*description)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
