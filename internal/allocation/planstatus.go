package allocation

import (
	"context"

	"github.com/iliyamo/trainer-seat-allocation/internal/model"
)

// PlanStatus is a point-in-time view of a trainer's subscription.
// Expiry is evaluated against the resolver's clock on every call; no
// background job ever flips it.
type PlanStatus struct {
	Plan               *model.Plan
	Subscription       *model.Subscription
	SeatLimit          int  // 0 without a live subscription
	ActiveStudentCount int
	IsExpired          bool

	activeStudents []model.Student
}

// HasPlan reports whether the trainer holds an active subscription,
// expired or not.
func (s PlanStatus) HasPlan() bool { return s.Subscription != nil && s.Plan != nil }

// PlanResolver answers "what plan does this trainer have right now".
type PlanResolver struct {
	subs     SubscriptionStore
	plans    PlanCatalog
	students StudentDirectory
	now      Clock
}

func NewPlanResolver(subs SubscriptionStore, plans PlanCatalog, students StudentDirectory, now Clock) *PlanResolver {
	if now == nil {
		now = systemClock
	}
	return &PlanResolver{subs: subs, plans: plans, students: students, now: now}
}

// ResolveCurrentPlan never fails for a trainer without a subscription:
// it returns a zero-capacity status.  A subscription whose plan row is
// gone is a referential failure and yields PLAN_NOT_FOUND.
func (r *PlanResolver) ResolveCurrentPlan(ctx context.Context, trainerID uint64) (PlanStatus, error) {
	const op = "plan.resolve"
	active, err := r.students.ListActiveStudents(ctx, trainerID)
	if err != nil {
		return PlanStatus{}, internal(op, err)
	}
	st := PlanStatus{ActiveStudentCount: len(active), activeStudents: active}

	sub, err := r.subs.GetActiveSubscription(ctx, trainerID)
	if err != nil {
		return PlanStatus{}, internal(op, err)
	}
	if sub == nil {
		return st, nil
	}
	plan, err := r.plans.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return PlanStatus{}, internal(op, err)
	}
	st.Plan = plan
	st.Subscription = sub
	st.IsExpired = sub.ExpiredAt(r.now())
	if !st.IsExpired {
		st.SeatLimit = plan.SeatLimit
	}
	return st, nil
}
