package models

import "strings"

// Plan is the caller's subscription tier, carried in the access token.
type Plan string

const (
	PlanFree       Plan = "FREE"
	PlanPro        Plan = "PRO"
	PlanEnterprise Plan = "ENTERPRISE"
)

// Unlimited marks a limit that never applies.
const Unlimited = -1

// PlanLimits bounds how many groups a user may belong to and how many members
// a group they own may have.
type PlanLimits struct {
	MaxGroups  int
	MaxMembers int
}

var planLimits = map[Plan]PlanLimits{
	PlanFree:       {MaxGroups: 3, MaxMembers: 5},
	PlanPro:        {MaxGroups: Unlimited, MaxMembers: 50},
	PlanEnterprise: {MaxGroups: Unlimited, MaxMembers: Unlimited},
}

// ParsePlan normalizes a plan claim. ok is false for unknown plans.
func ParsePlan(raw string) (Plan, bool) {
	p := Plan(strings.ToUpper(strings.TrimSpace(raw)))
	_, ok := planLimits[p]
	return p, ok
}

func (p Plan) Limits() PlanLimits {
	return planLimits[p]
}

// AllowsGroups reports whether a user holding current groups may create one more.
func (l PlanLimits) AllowsGroups(current int) bool {
	return l.MaxGroups == Unlimited || current < l.MaxGroups
}

// AllowsMembers reports whether a group with current members may take one more.
func (l PlanLimits) AllowsMembers(current int) bool {
	return l.MaxMembers == Unlimited || current < l.MaxMembers
}
