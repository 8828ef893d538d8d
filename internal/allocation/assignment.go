package allocation

import (
	"context"

	"github.com/iliyamo/trainer-seat-allocation/internal/logging"
	"github.com/iliyamo/trainer-seat-allocation/internal/metrics"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
)

// AssignmentResult reports which pool now backs a student.
type AssignmentResult struct {
	ResourceType       ResourceType `json:"resource_type"`
	AssignedResourceID *uint64      `json:"assigned_resource_id,omitempty"`
	// Reused is set when the student already held a live token.
	Reused bool `json:"reused"`
	// Degraded is set when a plan seat was granted but its token could
	// not be recorded.  The student still counts as plan-backed.
	Degraded bool `json:"degraded,omitempty"`
}

// Assigner binds one unit of capacity to a student.
type Assigner struct {
	validator *Validator
	ledger    *Ledger
}

func NewAssigner(validator *Validator, ledger *Ledger) *Assigner {
	return &Assigner{validator: validator, ledger: ledger}
}

// AssignResource backs student with a plan seat when one is free and
// with a standalone token otherwise.  A student who already holds a
// live token keeps it, which makes repeated calls idempotent.  The
// caller flips the student's status within the same transaction.
func (a *Assigner) AssignResource(ctx context.Context, trainerID uint64, student model.Student) (AssignmentResult, error) {
	const op = "assign"
	lg := logging.FromContext(ctx).With().
		Uint64("trainer_id", trainerID).
		Uint64("student_id", student.ID).
		Logger()

	existing, err := a.ledger.FindAssignedToken(ctx, trainerID, student.ID)
	if err != nil {
		return AssignmentResult{}, err
	}
	if existing != nil {
		reuse := student.IsActive() || existing.Kind == model.TokenKindStandalone
		if !reuse {
			// An inactive student's plan token only counts again if a
			// seat is actually free.
			vd, _, err := a.validator.evaluate(ctx, trainerID, 1)
			if err != nil {
				return AssignmentResult{}, err
			}
			reuse = vd.PlanSlotsAvailable > 0
			if !reuse {
				if err := a.ledger.Release(ctx, existing.ID); err != nil {
					return AssignmentResult{}, err
				}
			}
		}
		if reuse {
			rt := ResourceToken
			if existing.Kind == model.TokenKindPlan {
				rt = ResourcePlan
			}
			id := existing.ID
			metrics.RecordAssignment(string(rt), "reused")
			return AssignmentResult{ResourceType: rt, AssignedResourceID: &id, Reused: true}, nil
		}
	}

	vd, status, err := a.validator.evaluate(ctx, trainerID, 1)
	if err != nil {
		return AssignmentResult{}, err
	}
	if !vd.IsValid {
		metrics.RecordAssignment(string(ResourceNone), "rejected")
		code := CodeInsufficientResources
		if vd.AvailableSlots == 0 {
			code = CodeNoResourcesAvailable
		}
		return AssignmentResult{ResourceType: ResourceNone}, errorf(code, op, "no capacity left for trainer %d", trainerID)
	}

	if vd.PlanSlotsAvailable > 0 {
		tok, err := a.ledger.MintPlanToken(ctx, status.Subscription, student.ID)
		if err != nil {
			lg.Warn().Err(err).Msg("plan token not recorded; student stays plan-backed")
			metrics.RecordAssignment(string(ResourcePlan), "degraded")
			return AssignmentResult{ResourceType: ResourcePlan, Degraded: true}, nil
		}
		id := tok.ID
		metrics.RecordAssignment(string(ResourcePlan), "assigned")
		lg.Info().Uint64("token_id", id).Msg("plan seat assigned")
		return AssignmentResult{ResourceType: ResourcePlan, AssignedResourceID: &id}, nil
	}

	if vd.TokenSlotsAvailable > 0 {
		tok, err := a.ledger.Assign(ctx, trainerID, student.ID, 1)
		if err != nil {
			metrics.RecordAssignment(string(ResourceToken), "lost_race")
			return AssignmentResult{ResourceType: ResourceNone}, err
		}
		id := tok.ID
		metrics.RecordAssignment(string(ResourceToken), "assigned")
		lg.Info().Uint64("token_id", id).Msg("standalone token assigned")
		return AssignmentResult{ResourceType: ResourceToken, AssignedResourceID: &id}, nil
	}

	metrics.RecordAssignment(string(ResourceNone), "rejected")
	return AssignmentResult{ResourceType: ResourceNone}, errorf(CodeNoResourcesAvailable, op, "no capacity left for trainer %d", trainerID)
}
