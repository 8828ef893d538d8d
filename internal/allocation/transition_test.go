package allocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/trainer-seat-allocation/internal/lock"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
	"github.com/iliyamo/trainer-seat-allocation/internal/queue"
)

func TestClassifyTransition(t *testing.T) {
	small := &model.Plan{ID: 1, SeatLimit: 2}
	big := &model.Plan{ID: 2, SeatLimit: 5}
	sameSize := &model.Plan{ID: 3, SeatLimit: 2}
	sub := &model.Subscription{PlanID: small.ID}

	tests := []struct {
		name    string
		current *model.Subscription
		plan    *model.Plan
		next    *model.Plan
		want    model.TransitionType
	}{
		{"no subscription", nil, nil, big, model.TransitionFirstTime},
		{"same plan", sub, small, small, model.TransitionRenewal},
		{"more seats", sub, small, big, model.TransitionUpgrade},
		{"equal seats", sub, small, sameSize, model.TransitionRenewal},
		{"fewer seats", &model.Subscription{PlanID: big.ID}, big, small, model.TransitionDowngrade},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyTransition(tt.current, tt.plan, tt.next))
		})
	}
}

func TestTransition_FirstTime(t *testing.T) {
	f := newFixture(t)
	basic := f.plan("Basic", 3)

	res := f.subscribe(basic)
	assert.Equal(t, model.TransitionFirstTime, res.TransitionType)
	assert.Nil(t, res.PreviousPlanID)
	assert.Zero(t, res.StudentsArchived)
	assert.Equal(t, 3, res.AvailableSlots)
	assert.Equal(t, "Plan Basic activated with 3 seat(s).", res.Message)

	sts := f.students(4)
	f.activate(sts[:3]...)
	_, err := f.svc.AssignResourceToStudent(f.ctx, trainerID, sts[3].ID)
	assert.ErrorIs(t, err, ErrNoResourcesAvailable)
	assert.Equal(t, 3, f.activeCount())
	assert.Equal(t, []queue.EventType{
		queue.EventTransitionCompleted,
		queue.EventResourceAssigned,
		queue.EventResourceAssigned,
		queue.EventResourceAssigned,
	}, f.events.types())
}

func TestTransition_UpgradeReactivatesEveryone(t *testing.T) {
	f := newFixture(t)
	basic, pro := f.plan("Basic", 2), f.plan("Pro", 5)
	f.subscribe(basic)
	sts := f.students(2)
	f.activate(sts...)
	oldSub, err := f.store.GetActiveSubscription(f.ctx, trainerID)
	require.NoError(t, err)

	res := f.subscribe(pro)
	assert.Equal(t, model.TransitionUpgrade, res.TransitionType)
	require.NotNil(t, res.PreviousPlanID)
	assert.Equal(t, basic.ID, *res.PreviousPlanID)
	assert.Equal(t, 2, res.StudentsArchived)
	assert.Equal(t, 2, res.StudentsReactivated)
	assert.Equal(t, 3, res.AvailableSlots)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, f.activeCount())
	assert.Equal(t, 2, f.planBacked())

	for _, tok := range f.store.Tokens(trainerID) {
		if tok.SubscriptionID != nil && *tok.SubscriptionID == oldSub.ID {
			assert.False(t, tok.Active, "tokens of the superseded subscription are retired")
		} else {
			assert.True(t, tok.Active)
			assert.Equal(t, res.SubscriptionID, *tok.SubscriptionID)
		}
	}
	assert.Contains(t, f.events.types(), queue.EventStudentsReactivated)
}

func TestTransition_DowngradeRequiresManualSelection(t *testing.T) {
	f := newFixture(t)
	pro, basic := f.plan("Pro", 5), f.plan("Basic", 2)
	f.subscribe(pro)
	sts := f.students(5)
	f.activate(sts...)

	res := f.subscribe(basic)
	assert.Equal(t, model.TransitionDowngrade, res.TransitionType)
	assert.Equal(t, 5, res.StudentsArchived)
	assert.Zero(t, res.StudentsReactivated)
	assert.Equal(t, 5, res.RequiresManualSelection)
	assert.Len(t, res.EligibleStudents, 5)
	assert.Equal(t, 2, res.AvailableSlots)
	assert.Zero(t, f.activeCount())
	assert.Equal(t, "Downgraded to Basic (2 seats): choose up to 2 of 5 student(s) to reactivate.", res.Message)

	got, err := f.svc.ManuallyReactivateStudents(f.ctx, trainerID, ids(sts[0], sts[1]))
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Equal(t, 2, got.ReactivatedCount)
	assert.Empty(t, got.Errors)

	got, err = f.svc.ManuallyReactivateStudents(f.ctx, trainerID, ids(sts[2]))
	require.NoError(t, err)
	assert.False(t, got.Success)
	assert.Zero(t, got.ReactivatedCount)
	assert.Equal(t, CodeInsufficientResources, got.Code)
	assert.Equal(t, model.StudentInactive, f.status(sts[2].ID))
	assert.Equal(t, 2, f.planBacked())
}

func TestTransition_RenewalAfterExpiry(t *testing.T) {
	f := newFixture(t)
	basic := f.plan("Basic", 2)
	f.subscribe(basic)
	sts := f.students(2)
	f.activate(sts...)
	f.advance(31 * 24 * time.Hour)

	res := f.subscribe(basic)
	assert.Equal(t, model.TransitionRenewal, res.TransitionType)
	assert.Equal(t, 2, res.StudentsArchived)
	assert.Equal(t, 2, res.StudentsReactivated)
	assert.Zero(t, res.AvailableSlots)
	assert.Equal(t, "Plan Basic renewed: 2 of 2 student(s) reactivated.", res.Message)

	sub, err := f.store.GetActiveSubscription(f.ctx, trainerID)
	require.NoError(t, err)
	assert.Equal(t, f.clock().Add(basic.Duration()), sub.ExpiresAt)
}

func TestTransition_MaxReactivationsCapsBatch(t *testing.T) {
	f := newFixture(t)
	basic, pro := f.plan("Basic", 3), f.plan("Pro", 6)
	f.subscribe(basic)
	f.activate(f.students(3)...)

	res, err := f.svc.ProcessPlanTransition(f.ctx, trainerID, pro.ID, TransitionOptions{MaxReactivations: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, res.StudentsArchived)
	assert.Equal(t, 1, res.StudentsReactivated)
	assert.Equal(t, 5, res.AvailableSlots)

	eligible, err := f.svc.GetEligibleStudentsForReactivation(f.ctx, trainerID)
	require.NoError(t, err)
	assert.Len(t, eligible, 2)
}

func TestTransition_UnknownOrRetiredPlan(t *testing.T) {
	f := newFixture(t)
	retired := f.store.AddPlan(model.Plan{Name: "Legacy", SeatLimit: 9, DurationDays: 30})

	_, err := f.svc.ProcessPlanTransition(f.ctx, trainerID, 424242, TransitionOptions{})
	assert.ErrorIs(t, err, ErrPlanNotFound)

	_, err = f.svc.ProcessPlanTransition(f.ctx, trainerID, retired.ID, TransitionOptions{})
	assert.ErrorIs(t, err, ErrPlanNotFound)

	sub, err := f.store.GetActiveSubscription(f.ctx, trainerID)
	require.NoError(t, err)
	assert.Nil(t, sub)
}

type busyLocker struct{}

func (busyLocker) Lock(context.Context, uint64) (func(), error) { return nil, lock.ErrLocked }

func TestTransition_ConcurrentTransitionIsRefused(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Locker = busyLocker{} })
	basic := f.plan("Basic", 2)

	_, err := f.svc.ProcessPlanTransition(f.ctx, trainerID, basic.ID, TransitionOptions{})
	assert.ErrorIs(t, err, ErrTransitionInProgress)
	assert.True(t, IsRetryable(err))
}

func TestEligibility_WindowAndReason(t *testing.T) {
	f := newFixture(t)
	big := f.store.AddPlan(model.Plan{Name: "Studio", SeatLimit: 10, DurationDays: 90, IsActive: true})
	f.subscribe(big)
	sts := f.students(4)
	f.activate(sts...)

	_, err := f.svc.DeactivateStudent(f.ctx, trainerID, sts[0].ID, model.ReasonPlanExpired)
	require.NoError(t, err)
	f.advance(2 * 24 * time.Hour)
	_, err = f.svc.DeactivateStudent(f.ctx, trainerID, sts[1].ID, model.ReasonPlanExpired)
	require.NoError(t, err)
	_, err = f.svc.DeactivateStudent(f.ctx, trainerID, sts[2].ID, model.ReasonManual)
	require.NoError(t, err)
	f.advance(29 * 24 * time.Hour)

	eligible, err := f.svc.GetEligibleStudentsForReactivation(f.ctx, trainerID)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, sts[1].ID, eligible[0].StudentID)
	assert.True(t, eligible[0].HasLiveToken)
	assert.Equal(t, model.ReasonPlanExpired, eligible[0].Reason)

	got, err := f.svc.ManuallyReactivateStudents(f.ctx, trainerID, ids(sts[1]))
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReactivatedCount)

	eligible, err = f.svc.GetEligibleStudentsForReactivation(f.ctx, trainerID)
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestManualReactivation_PerStudentErrors(t *testing.T) {
	f := newFixture(t)
	f.subscribe(f.plan("Pro", 5))
	sts := f.students(2)
	f.activate(sts[0])
	other := f.store.AddStudent(model.Student{TrainerID: trainerID + 1})

	got, err := f.svc.ManuallyReactivateStudents(f.ctx, trainerID, []uint64{sts[0].ID, sts[1].ID, other.ID, 31337, sts[1].ID})
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Equal(t, 1, got.ReactivatedCount)

	codes := map[uint64]Code{}
	for _, ie := range got.Errors {
		codes[ie.StudentID] = ie.Code
	}
	assert.Equal(t, map[uint64]Code{
		sts[0].ID: CodeStudentAlreadyActive,
		other.ID:  CodeStudentNotOwned,
		31337:     CodeStudentNotFound,
	}, codes)

	_, err = f.svc.ManuallyReactivateStudents(f.ctx, trainerID, nil)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDeactivate_Errors(t *testing.T) {
	f := newFixture(t)
	f.subscribe(f.plan("Pro", 5))
	st := f.students(1)[0]

	_, err := f.svc.DeactivateStudent(f.ctx, trainerID, st.ID, model.ReasonManual)
	assert.ErrorIs(t, err, ErrStudentNotActive)

	f.activate(st)
	_, err = f.svc.DeactivateStudent(f.ctx, trainerID, st.ID, "bored")
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = f.svc.DeactivateStudent(f.ctx, trainerID+1, st.ID, model.ReasonManual)
	assert.ErrorIs(t, err, ErrStudentNotOwned)
	assert.Equal(t, model.StudentActive, f.status(st.ID))
}

func TestCapacityInvariantAcrossTransitions(t *testing.T) {
	f := newFixture(t)
	small, mid, big := f.plan("S", 2), f.plan("M", 4), f.plan("L", 8)
	grant(t, f, 2, 120*24*time.Hour)
	sts := f.students(8)

	steps := []model.Plan{mid, big, small, mid, small}
	f.subscribe(steps[0])
	for _, p := range steps[1:] {
		for _, st := range sts {
			_, _ = f.svc.AssignResourceToStudent(f.ctx, trainerID, st.ID)
		}
		f.subscribe(p)
		assert.LessOrEqual(t, f.planBacked(), p.SeatLimit, "plan %s", p.Name)
		assert.LessOrEqual(t, f.activeCount(), p.SeatLimit+2)
	}
}

func TestTransition_RenewalReactivatesStandaloneHoldersWithoutSpendingSeats(t *testing.T) {
	f := newFixture(t)
	solo := f.plan("Solo", 1)
	f.subscribe(solo)
	sts := f.students(2)
	f.activate(sts[0])
	grant(t, f, 1, 60*24*time.Hour)
	f.activate(sts[1])
	require.Equal(t, 1, f.planBacked())

	res := f.subscribe(solo)
	assert.Equal(t, model.TransitionRenewal, res.TransitionType)
	assert.Equal(t, 2, res.StudentsArchived)
	assert.Equal(t, 2, res.StudentsReactivated)
	assert.Zero(t, res.AvailableSlots)
	assert.Empty(t, res.Errors)
	assert.Equal(t, model.StudentActive, f.status(sts[0].ID))
	assert.Equal(t, model.StudentActive, f.status(sts[1].ID))
	assert.Equal(t, 1, f.planBacked())
}

func TestTransition_MaxReactivationsCountsStudentsNotSeats(t *testing.T) {
	f := newFixture(t)
	solo := f.plan("Solo", 1)
	f.subscribe(solo)
	sts := f.students(2)
	f.activate(sts[0])
	grant(t, f, 1, 60*24*time.Hour)
	f.activate(sts[1])

	res, err := f.svc.ProcessPlanTransition(f.ctx, trainerID, solo.ID, TransitionOptions{MaxReactivations: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, res.StudentsReactivated)
	assert.Equal(t, 1, f.activeCount())
}
