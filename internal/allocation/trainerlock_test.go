package allocation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/trainer-seat-allocation/internal/memstore"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
)

// opRecorder wraps the store and records the order of calls that open a
// capacity transaction.
type opRecorder struct {
	*memstore.Store
	mu      sync.Mutex
	ops     []string
	lockErr error
}

func (r *opRecorder) record(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *opRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
}

func (r *opRecorder) first() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ops) == 0 {
		return ""
	}
	return r.ops[0]
}

func (r *opRecorder) LockTrainer(ctx context.Context, trainerID uint64) error {
	r.record(fmt.Sprintf("lock:%d", trainerID))
	if r.lockErr != nil {
		return r.lockErr
	}
	return r.Store.LockTrainer(ctx, trainerID)
}

func (r *opRecorder) GetActiveSubscription(ctx context.Context, trainerID uint64) (*model.Subscription, error) {
	r.record("get_subscription")
	return r.Store.GetActiveSubscription(ctx, trainerID)
}

func (r *opRecorder) GetStudent(ctx context.Context, id uint64) (*model.Student, error) {
	r.record("get_student")
	return r.Store.GetStudent(ctx, id)
}

func newRecordingFixture(t *testing.T) (*fixture, *opRecorder) {
	rec := &opRecorder{}
	f := newFixture(t, func(d *Deps) {
		rec.Store = d.Subscriptions.(*memstore.Store)
		d.Subscriptions = rec
		d.Students = rec
	})
	return f, rec
}

func TestTrainerLock_TakenFirstInEveryCapacityTransaction(t *testing.T) {
	f, rec := newRecordingFixture(t)
	basic, pro := f.plan("Basic", 2), f.plan("Pro", 1)
	lockOp := fmt.Sprintf("lock:%d", trainerID)

	rec.reset()
	f.subscribe(basic)
	assert.Equal(t, lockOp, rec.first(), "transition")

	sts := f.students(2)
	rec.reset()
	f.activate(sts...)
	assert.Equal(t, lockOp, rec.first(), "assignment")

	rec.reset()
	f.subscribe(pro)
	assert.Equal(t, lockOp, rec.first(), "downgrade")

	rec.reset()
	got, err := f.svc.ManuallyReactivateStudents(f.ctx, trainerID, ids(sts[0]))
	require.NoError(t, err)
	assert.Equal(t, 1, got.ReactivatedCount)
	assert.Equal(t, lockOp, rec.first(), "manual reactivation")

	rec.reset()
	_, err = f.svc.DeactivateStudent(f.ctx, trainerID, sts[0].ID, model.ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, lockOp, rec.first(), "deactivation")
}

func TestTrainerLock_FailureAbortsAssignment(t *testing.T) {
	f, rec := newRecordingFixture(t)
	f.subscribe(f.plan("Basic", 2))
	st := f.students(1)[0]

	rec.lockErr = errors.New("lock wait timeout exceeded")
	res, err := f.svc.AssignResourceToStudent(f.ctx, trainerID, st.ID)
	assert.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, ResourceNone, res.ResourceType)
	assert.Equal(t, model.StudentInactive, f.status(st.ID))
	assert.Empty(t, f.store.Tokens(trainerID))
}
