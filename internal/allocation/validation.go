package allocation

import (
	"context"
	"fmt"

	"github.com/iliyamo/trainer-seat-allocation/internal/metrics"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
)

// ResourceType names the pool a student is backed by.
type ResourceType string

const (
	ResourcePlan  ResourceType = "plan"
	ResourceToken ResourceType = "token"
	ResourceNone  ResourceType = "none"
)

// Verdict is the outcome of a capacity check.  A negative verdict is a
// normal result, not an error.
type Verdict struct {
	IsValid             bool         `json:"is_valid"`
	ResourceType        ResourceType `json:"resource_type"`
	QuantityRequested   int          `json:"quantity_requested"`
	AvailableSlots      int          `json:"available_slots"`
	PlanSlotsAvailable  int          `json:"plan_slots_available"`
	TokenSlotsAvailable int          `json:"token_slots_available"`
	PlanSlotsUsed       int          `json:"plan_slots_used"`
	SeatLimit           int          `json:"seat_limit"`
	HasPlan             bool         `json:"has_plan"`
	PlanExpired         bool         `json:"plan_expired"`
	Code                Code         `json:"code,omitempty"`
	Recommendations     []string     `json:"recommendations"`
}

// Validator computes how many students a trainer may still activate.
type Validator struct {
	plans    *PlanResolver
	ledger   *Ledger
	lowSlots int
}

// NewValidator returns a validator that warns once remaining capacity
// drops to lowSlots or below.
func NewValidator(plans *PlanResolver, ledger *Ledger, lowSlots int) *Validator {
	return &Validator{plans: plans, ledger: ledger, lowSlots: lowSlots}
}

// Validate checks whether quantity more students may become active.
func (v *Validator) Validate(ctx context.Context, trainerID uint64, quantity int) (Verdict, error) {
	if quantity < 1 {
		return Verdict{}, errorf(CodeInvalidRequest, "validate", "quantity %d must be positive", quantity)
	}
	verdict, _, err := v.evaluate(ctx, trainerID, quantity)
	if err != nil {
		return Verdict{}, err
	}
	metrics.RecordValidation(verdict.IsValid, string(verdict.ResourceType))
	return verdict, nil
}

// evaluate is Validate without metrics, also returning the plan status
// it was computed from.
func (v *Validator) evaluate(ctx context.Context, trainerID uint64, quantity int) (Verdict, PlanStatus, error) {
	status, err := v.plans.ResolveCurrentPlan(ctx, trainerID)
	if err != nil {
		return Verdict{}, PlanStatus{}, err
	}

	used := 0
	if status.ActiveStudentCount > 0 {
		kinds, err := v.ledger.BackingKinds(ctx, trainerID)
		if err != nil {
			return Verdict{}, PlanStatus{}, err
		}
		for _, s := range status.activeStudents {
			// Students activated before tokens existed have no row at all
			// and keep occupying a plan seat.
			kind, ok := kinds[s.ID]
			if !ok || kind == model.TokenKindPlan {
				used++
			}
		}
	}

	planAvail := 0
	if status.HasPlan() && !status.IsExpired {
		planAvail = max(0, status.SeatLimit-used)
	}
	tokenAvail, err := v.ledger.AvailableQuantity(ctx, trainerID, "")
	if err != nil {
		return Verdict{}, PlanStatus{}, err
	}

	total := planAvail + tokenAvail
	verdict := Verdict{
		IsValid:             total >= quantity,
		QuantityRequested:   quantity,
		AvailableSlots:      total,
		PlanSlotsAvailable:  planAvail,
		TokenSlotsAvailable: tokenAvail,
		PlanSlotsUsed:       used,
		SeatLimit:           status.SeatLimit,
		HasPlan:             status.HasPlan(),
		PlanExpired:         status.HasPlan() && status.IsExpired,
	}
	switch {
	case planAvail > 0:
		verdict.ResourceType = ResourcePlan
	case tokenAvail > 0:
		verdict.ResourceType = ResourceToken
	default:
		verdict.ResourceType = ResourceNone
	}
	if !verdict.IsValid {
		if total == 0 {
			verdict.Code = CodeNoResourcesAvailable
		} else {
			verdict.Code = CodeInsufficientResources
		}
	}
	verdict.Recommendations = v.recommend(verdict, status)
	return verdict, status, nil
}

func (v *Validator) recommend(vd Verdict, status PlanStatus) []string {
	recs := []string{}
	switch {
	case !vd.HasPlan:
		recs = append(recs, "No active plan: subscribe to a plan to activate students.")
	case vd.PlanExpired:
		recs = append(recs, fmt.Sprintf("Your %s plan has expired: renew it to restore %d seat(s).",
			status.Plan.Name, status.Plan.SeatLimit))
	case vd.PlanSlotsAvailable == 0 && vd.TokenSlotsAvailable > 0:
		recs = append(recs, "All plan seats are in use: standalone tokens will be used.")
	}
	switch {
	case vd.AvailableSlots == 0:
		recs = append(recs, "No slots available: upgrade your plan or purchase tokens.")
	case !vd.IsValid:
		recs = append(recs, fmt.Sprintf("Only %d slot(s) available for %d requested: deactivate students or purchase tokens.",
			vd.AvailableSlots, vd.QuantityRequested))
	default:
		left := vd.AvailableSlots - vd.QuantityRequested
		if left <= v.lowSlots {
			recs = append(recs, fmt.Sprintf("Running low: %d slot(s) left after this activation.", left))
		}
	}
	return recs
}
