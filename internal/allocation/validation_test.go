package allocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/trainer-seat-allocation/internal/model"
)

func TestValidate_NoPlanNoTokens(t *testing.T) {
	f := newFixture(t)

	v, err := f.svc.ValidateStudentCreation(f.ctx, trainerID, 1)
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.False(t, v.HasPlan)
	assert.Equal(t, ResourceNone, v.ResourceType)
	assert.Equal(t, CodeNoResourcesAvailable, v.Code)
	assert.Zero(t, v.AvailableSlots)
	assert.Contains(t, v.Recommendations, "No active plan: subscribe to a plan to activate students.")
}

func TestValidate_RejectsNonPositiveQuantity(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ValidateStudentCreation(f.ctx, trainerID, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestValidate_PlanBeforeTokens(t *testing.T) {
	f := newFixture(t)
	f.subscribe(f.plan("Solo", 1))
	grant(t, f, 2, 60*24*time.Hour)
	sts := f.students(2)

	v, err := f.svc.ValidateStudentCreation(f.ctx, trainerID, 1)
	require.NoError(t, err)
	assert.Equal(t, ResourcePlan, v.ResourceType)
	assert.Equal(t, 3, v.AvailableSlots)

	f.activate(sts[0])
	v, err = f.svc.ValidateStudentCreation(f.ctx, trainerID, 1)
	require.NoError(t, err)
	assert.Equal(t, ResourceToken, v.ResourceType)
	assert.Equal(t, 1, v.PlanSlotsUsed)
	assert.Zero(t, v.PlanSlotsAvailable)
	assert.Equal(t, 2, v.TokenSlotsAvailable)
	assert.Contains(t, v.Recommendations, "All plan seats are in use: standalone tokens will be used.")
	assert.Contains(t, v.Recommendations, "Running low: 1 slot(s) left after this activation.")

	res, err := f.svc.AssignResourceToStudent(f.ctx, trainerID, sts[1].ID)
	require.NoError(t, err)
	assert.Equal(t, ResourceToken, res.ResourceType)
}

func TestValidate_TokenBackedStudentsDoNotUsePlanSeats(t *testing.T) {
	f := newFixture(t)
	grant(t, f, 1, 60*24*time.Hour)
	st := f.students(1)[0]
	f.activate(st)
	f.subscribe(f.plan("Duo", 2))

	assert.Equal(t, model.StudentActive, f.status(st.ID))
	v, err := f.svc.ValidateStudentCreation(f.ctx, trainerID, 2)
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.Zero(t, v.PlanSlotsUsed)
	assert.Equal(t, 2, v.PlanSlotsAvailable)
}

func TestValidate_LegacyStudentWithoutTokenUsesPlanSeat(t *testing.T) {
	f := newFixture(t)
	f.subscribe(f.plan("Duo", 2))
	f.store.AddStudent(model.Student{TrainerID: trainerID, Status: model.StudentActive})

	v, err := f.svc.ValidateStudentCreation(f.ctx, trainerID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, v.PlanSlotsUsed)
	assert.Equal(t, 1, v.PlanSlotsAvailable)
}

func TestValidate_ExpiredPlanIsZeroCapacity(t *testing.T) {
	f := newFixture(t)
	f.subscribe(f.plan("Trio", 3))
	f.activate(f.students(1)...)
	f.advance(31 * 24 * time.Hour)

	v, err := f.svc.ValidateStudentCreation(f.ctx, trainerID, 1)
	require.NoError(t, err)
	assert.False(t, v.IsValid)
	assert.True(t, v.PlanExpired)
	assert.Zero(t, v.PlanSlotsAvailable)
	assert.Zero(t, v.SeatLimit)
	assert.Contains(t, v.Recommendations, "Your Trio plan has expired: renew it to restore 3 seat(s).")
}

func TestAssign_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	grant(t, f, 5, 30*24*time.Hour)
	st := f.students(1)[0]

	first, err := f.svc.AssignResourceToStudent(f.ctx, trainerID, st.ID)
	require.NoError(t, err)
	assert.Equal(t, ResourceToken, first.ResourceType)
	assert.False(t, first.Reused)

	second, err := f.svc.AssignResourceToStudent(f.ctx, trainerID, st.ID)
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.Equal(t, *first.AssignedResourceID, *second.AssignedResourceID)
	assert.Len(t, f.store.Tokens(trainerID), 2)
	assert.Equal(t, model.StudentActive, f.status(st.ID))
}

func TestAssign_NoCapacityLeavesStudentInactive(t *testing.T) {
	f := newFixture(t)
	f.subscribe(f.plan("Solo", 1))
	sts := f.students(2)
	f.activate(sts[0])

	res, err := f.svc.AssignResourceToStudent(f.ctx, trainerID, sts[1].ID)
	assert.ErrorIs(t, err, ErrNoResourcesAvailable)
	assert.Equal(t, ResourceNone, res.ResourceType)
	assert.Equal(t, model.StudentInactive, f.status(sts[1].ID))
}

func TestAssign_Ownership(t *testing.T) {
	f := newFixture(t)
	f.subscribe(f.plan("Solo", 1))
	other := f.store.AddStudent(model.Student{TrainerID: trainerID + 1})

	_, err := f.svc.AssignResourceToStudent(f.ctx, trainerID, other.ID)
	assert.ErrorIs(t, err, ErrStudentNotOwned)

	_, err = f.svc.AssignResourceToStudent(f.ctx, trainerID, 9999)
	assert.ErrorIs(t, err, ErrStudentNotFound)
}

func TestAssign_ConcurrentRequestsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	grant(t, f, 3, 30*24*time.Hour)
	sts := f.students(10)

	errs := make(chan error, len(sts))
	for _, st := range sts {
		go func(id uint64) {
			_, err := f.svc.AssignResourceToStudent(f.ctx, trainerID, id)
			errs <- err
		}(st.ID)
	}
	ok := 0
	for range sts {
		err := <-errs
		if err == nil {
			ok++
			continue
		}
		assert.True(t, IsRetryable(err) || CodeOf(err) == CodeNoResourcesAvailable, "unexpected error %v", err)
	}
	assert.Equal(t, 3, ok)
	assert.Equal(t, 3, f.activeCount())
	assert.Equal(t, 3, totalUnits(f.store.Tokens(trainerID)))
}
