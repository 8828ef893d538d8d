package allocation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/trainer-seat-allocation/internal/memstore"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
	"github.com/iliyamo/trainer-seat-allocation/internal/queue"
)

const trainerID uint64 = 7

type eventRecorder struct {
	mu     sync.Mutex
	events []queue.AllocationEvent
}

func (r *eventRecorder) Publish(_ context.Context, ev queue.AllocationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) types() []queue.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]queue.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memstore.Store
	svc    *Service
	events *eventRecorder

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T, opts ...func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		events: &eventRecorder{},
		now:    time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.store = memstore.New(f.clock)
	d := Deps{
		Plans:              f.store,
		Subscriptions:      f.store,
		Students:           f.store,
		Tokens:             f.store,
		History:            f.store,
		Tx:                 f.store,
		Events:             f.events,
		Clock:              f.clock,
		ReactivationWindow: 30 * 24 * time.Hour,
		LowSlotsThreshold:  2,
	}
	for _, o := range opts {
		o(&d)
	}
	f.svc = New(d)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) plan(name string, seats int) model.Plan {
	return f.store.AddPlan(model.Plan{Name: name, SeatLimit: seats, DurationDays: 30, IsActive: true})
}

func (f *fixture) students(n int) []model.Student {
	out := make([]model.Student, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, f.store.AddStudent(model.Student{TrainerID: trainerID}))
	}
	return out
}

func (f *fixture) subscribe(p model.Plan) TransitionResult {
	f.t.Helper()
	res, err := f.svc.ProcessPlanTransition(f.ctx, trainerID, p.ID, TransitionOptions{})
	require.NoError(f.t, err)
	return res
}

func (f *fixture) activate(sts ...model.Student) {
	f.t.Helper()
	for _, st := range sts {
		_, err := f.svc.AssignResourceToStudent(f.ctx, trainerID, st.ID)
		require.NoError(f.t, err)
	}
}

func (f *fixture) status(id uint64) model.StudentStatus {
	f.t.Helper()
	st, err := f.store.GetStudent(f.ctx, id)
	require.NoError(f.t, err)
	return st.Status
}

func (f *fixture) activeCount() int {
	f.t.Helper()
	sts, err := f.store.ListActiveStudents(f.ctx, trainerID)
	require.NoError(f.t, err)
	return len(sts)
}

// planBacked counts active students occupying a plan seat.
func (f *fixture) planBacked() int {
	f.t.Helper()
	v, err := f.svc.ValidateStudentCreation(f.ctx, trainerID, 1)
	require.NoError(f.t, err)
	return v.PlanSlotsUsed
}

func ids(sts ...model.Student) []uint64 {
	out := make([]uint64, 0, len(sts))
	for _, s := range sts {
		out = append(out, s.ID)
	}
	return out
}
