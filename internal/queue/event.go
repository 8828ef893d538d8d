// Package queue defines message payloads exchanged over the message broker.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// AllocationQueue is the durable queue every allocation event is routed to.
const AllocationQueue = "allocation.events"

// EventType names what happened.
type EventType string

const (
	EventTransitionCompleted EventType = "transition.completed"
	EventStudentsReactivated EventType = "students.reactivated"
	EventResourceAssigned    EventType = "resource.assigned"
	EventStudentDeactivated  EventType = "student.deactivated"
)

// AllocationEvent is published after an allocation change commits.  It
// carries enough context for the audit consumer to write a line without
// querying the primary database.
type AllocationEvent struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	TrainerID      uint64    `json:"trainer_id"`
	StudentIDs     []uint64  `json:"student_ids,omitempty"`
	TransitionType string    `json:"transition_type,omitempty"`
	PlanID         uint64    `json:"plan_id,omitempty"`
	ResourceType   string    `json:"resource_type,omitempty"`
	TokenID        uint64    `json:"token_id,omitempty"`
	Count          int       `json:"count"`
	Detail         string    `json:"detail,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewEvent stamps a fresh id and timestamp on an event of type t.
func NewEvent(t EventType, trainerID uint64, at time.Time) AllocationEvent {
	return AllocationEvent{
		ID:         uuid.NewString(),
		Type:       t,
		TrainerID:  trainerID,
		OccurredAt: at.UTC(),
	}
}
