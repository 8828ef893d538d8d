package model

import (
	"fmt"
	"time"
)

// DeactivationReason explains why a student stopped being active.
type DeactivationReason string

const (
	ReasonPlanExpired DeactivationReason = "plan_expired"
	ReasonPlanChanged DeactivationReason = "plan_changed"
	ReasonManual      DeactivationReason = "manual"
)

// ParseDeactivationReason validates a stored or user supplied reason.
func ParseDeactivationReason(s string) (DeactivationReason, error) {
	switch DeactivationReason(s) {
	case ReasonPlanExpired:
		return ReasonPlanExpired, nil
	case ReasonPlanChanged:
		return ReasonPlanChanged, nil
	case ReasonManual:
		return ReasonManual, nil
	}
	return "", fmt.Errorf("unknown deactivation reason %q", s)
}

// Reactivatable reports whether students deactivated for this reason
// may be offered back automatically.  Manual removals are final.
func (r DeactivationReason) Reactivatable() bool {
	switch r {
	case ReasonPlanExpired, ReasonPlanChanged:
		return true
	case ReasonManual:
		return false
	}
	return false
}

// DeactivationRecord is an append-only row written every time a student
// leaves the active set.  Rows are never updated.
//
// Fields:
//  ID               – primary key identifier.
//  TrainerID        – owning trainer.
//  StudentID        – deactivated student.
//  PlanID           – plan active at deactivation time (nil without a subscription).
//  TokenID          – token that backed the student, if any.
//  ActivatedAt      – when the student's backing started.
//  DeactivatedAt    – when the student was deactivated.
//  Reason           – why.
//  WasActive        – whether the student was active right before.
//  CanBeReactivated – derived from Reason at creation time.
type DeactivationRecord struct {
	ID               uint64             `json:"id"`
	TrainerID        uint64             `json:"trainer_id"`
	StudentID        uint64             `json:"student_id"`
	PlanID           *uint64            `json:"plan_id,omitempty"`
	TokenID          *uint64            `json:"token_id,omitempty"`
	ActivatedAt      time.Time          `json:"activated_at"`
	DeactivatedAt    time.Time          `json:"deactivated_at"`
	Reason           DeactivationReason `json:"reason"`
	WasActive        bool               `json:"was_active"`
	CanBeReactivated bool               `json:"can_be_reactivated"`
}
