// Package events publishes group domain events on the group-events topic.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types on the wire.
const (
	TypeMemberAdded   = "group.member.added"
	TypeMemberRemoved = "group.member.removed"
	TypeGroupDeleted  = "group.deleted"
	TypeGroupUpdated  = "group.updated"
)

// Event is a group domain event. The set of implementations is closed.
type Event interface {
	GroupID() string
	isEvent()
}

type MemberAdded struct {
	Group    string
	MemberID string
	Email    string
	Members  []string
}

type MemberRemoved struct {
	Group    string
	MemberID string
	Members  []string
}

type GroupDeleted struct {
	Group   string
	Name    string
	Owner   string
	Members []string
}

type GroupUpdated struct {
	Group       string
	Name        string
	Description *string
}

func (e MemberAdded) GroupID() string   { return e.Group }
func (e MemberRemoved) GroupID() string { return e.Group }
func (e GroupDeleted) GroupID() string  { return e.Group }
func (e GroupUpdated) GroupID() string  { return e.Group }

func (MemberAdded) isEvent()   {}
func (MemberRemoved) isEvent() {}
func (GroupDeleted) isEvent()  {}
func (GroupUpdated) isEvent()  {}

// Envelope is the published JSON shape.
type Envelope struct {
	Type      string    `json:"type"`
	GroupID   string    `json:"groupId"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

type memberAddedPayload struct {
	MemberID string   `json:"memberId"`
	Email    string   `json:"email,omitempty"`
	Members  []string `json:"members"`
}

type memberRemovedPayload struct {
	MemberID string   `json:"memberId"`
	Members  []string `json:"members"`
}

type groupDeletedPayload struct {
	Name    string   `json:"name"`
	Owner   string   `json:"owner"`
	Members []string `json:"members"`
}

type groupUpdatedPayload struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// NewEnvelope maps an event to its wire envelope.
func NewEnvelope(event Event, ts time.Time) (Envelope, error) {
	env := Envelope{GroupID: event.GroupID(), Timestamp: ts.UTC()}
	switch e := event.(type) {
	case MemberAdded:
		env.Type = TypeMemberAdded
		env.Payload = memberAddedPayload{MemberID: e.MemberID, Email: e.Email, Members: nonNil(e.Members)}
	case MemberRemoved:
		env.Type = TypeMemberRemoved
		env.Payload = memberRemovedPayload{MemberID: e.MemberID, Members: nonNil(e.Members)}
	case GroupDeleted:
		env.Type = TypeGroupDeleted
		env.Payload = groupDeletedPayload{Name: e.Name, Owner: e.Owner, Members: nonNil(e.Members)}
	case GroupUpdated:
		env.Type = TypeGroupUpdated
		env.Payload = groupUpdatedPayload{Name: e.Name, Description: e.Description}
	default:
		return Envelope{}, fmt.Errorf("unsupported event %T", event)
	}
	return env, nil
}

// Encode returns the JSON envelope for event.
func Encode(event Event, ts time.Time) ([]byte, error) {
	env, err := NewEnvelope(event, ts)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
