package allocation

import (
	"context"
	"time"

	"github.com/iliyamo/trainer-seat-allocation/internal/logging"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
	"github.com/iliyamo/trainer-seat-allocation/internal/queue"
)

// Deps wires a Service.  Locker and Events may be nil.
type Deps struct {
	Plans         PlanCatalog
	Subscriptions SubscriptionStore
	Students      StudentDirectory
	Tokens        TokenStore
	History       HistoryStore
	Tx            Transactor
	Locker        TrainerLocker
	Events        EventPublisher
	Clock         Clock

	ReactivationWindow time.Duration
	LowSlotsThreshold  int
}

// Service is the entry point used by handlers and the CLI.
type Service struct {
	Resolver  *PlanResolver
	Ledger    *Ledger
	Validator *Validator
	Assigner  *Assigner
	History   *History
	Engine    *Engine

	subs     SubscriptionStore
	students StudentDirectory
	tx       Transactor
	events   EventPublisher
	now      Clock
}

type noopLocker struct{}

func (noopLocker) Lock(context.Context, uint64) (func(), error) { return func() {}, nil }

// inTrainerTx runs fn in a transaction that starts by locking the
// trainer.  Every path that spends or frees capacity goes through it, so
// two activations for one trainer never both see the last free seat.
func inTrainerTx(ctx context.Context, tx Transactor, subs SubscriptionStore, trainerID uint64, fn func(ctx context.Context) error) error {
	return tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := subs.LockTrainer(ctx, trainerID); err != nil {
			return internal("lock_trainer", err)
		}
		return fn(ctx)
	})
}

func New(d Deps) *Service {
	now := d.Clock
	if now == nil {
		now = systemClock
	}
	events := d.Events
	if events == nil {
		events = noopPublisher{}
	}
	locker := d.Locker
	if locker == nil {
		locker = noopLocker{}
	}

	resolver := NewPlanResolver(d.Subscriptions, d.Plans, d.Students, now)
	ledger := NewLedger(d.Tokens, d.Tx, now)
	validator := NewValidator(resolver, ledger, d.LowSlotsThreshold)
	assigner := NewAssigner(validator, ledger)
	history := NewHistory(d.History, d.Students, ledger, d.ReactivationWindow, now)
	engine := &Engine{
		plans:     d.Plans,
		subs:      d.Subscriptions,
		students:  d.Students,
		resolver:  resolver,
		ledger:    ledger,
		validator: validator,
		assigner:  assigner,
		history:   history,
		tx:        d.Tx,
		locker:    locker,
		events:    events,
		now:       now,
	}
	return &Service{
		Resolver:  resolver,
		Ledger:    ledger,
		Validator: validator,
		Assigner:  assigner,
		History:   history,
		Engine:    engine,
		subs:      d.Subscriptions,
		students:  d.Students,
		tx:        d.Tx,
		events:    events,
		now:       now,
	}
}

// ValidateStudentCreation reports whether quantity more students fit.
func (s *Service) ValidateStudentCreation(ctx context.Context, trainerID uint64, quantity int) (Verdict, error) {
	return s.Validator.Validate(ctx, trainerID, quantity)
}

// AssignResourceToStudent backs the student with a resource and marks
// it active.  Both happen in one transaction: a failed assignment never
// leaves the student active.
func (s *Service) AssignResourceToStudent(ctx context.Context, trainerID, studentID uint64) (AssignmentResult, error) {
	const op = "assign"
	var res AssignmentResult
	err := inTrainerTx(ctx, s.tx, s.subs, trainerID, func(ctx context.Context) error {
		st, err := s.students.GetStudent(ctx, studentID)
		if err != nil {
			return internal(op, err)
		}
		if st.TrainerID != trainerID {
			return errorf(CodeStudentNotOwned, op, "student %d belongs to another trainer", studentID)
		}
		res, err = s.Assigner.AssignResource(ctx, trainerID, *st)
		if err != nil {
			return err
		}
		if st.IsActive() {
			return nil
		}
		return internal(op, s.students.SetStudentStatus(ctx, studentID, model.StudentActive))
	})
	if err != nil {
		return AssignmentResult{ResourceType: ResourceNone}, err
	}
	if !res.Reused {
		ev := queue.NewEvent(queue.EventResourceAssigned, trainerID, s.now())
		ev.StudentIDs = []uint64{studentID}
		ev.ResourceType = string(res.ResourceType)
		if res.AssignedResourceID != nil {
			ev.TokenID = *res.AssignedResourceID
		}
		ev.Count = 1
		if err := s.events.Publish(ctx, ev); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Msg("event not published")
		}
	}
	return res, nil
}

// ProcessPlanTransition switches the trainer to a new plan.
func (s *Service) ProcessPlanTransition(ctx context.Context, trainerID, newPlanID uint64, opts TransitionOptions) (TransitionResult, error) {
	return s.Engine.ProcessPlanTransition(ctx, trainerID, newPlanID, opts)
}

// ManuallyReactivateStudents reactivates an operator-chosen set.
func (s *Service) ManuallyReactivateStudents(ctx context.Context, trainerID uint64, studentIDs []uint64) (ReactivationResult, error) {
	return s.Engine.ManuallyReactivateStudents(ctx, trainerID, studentIDs)
}

// GetEligibleStudentsForReactivation lists reactivation candidates.
func (s *Service) GetEligibleStudentsForReactivation(ctx context.Context, trainerID uint64) ([]EligibleStudent, error) {
	return s.History.EligibleStudents(ctx, trainerID)
}

// DeactivateStudent removes a student from the active set.
func (s *Service) DeactivateStudent(ctx context.Context, trainerID, studentID uint64, reason model.DeactivationReason) (*model.DeactivationRecord, error) {
	return s.Engine.DeactivateStudent(ctx, trainerID, studentID, reason)
}

// GrantTokens adds standalone capacity to a trainer.
func (s *Service) GrantTokens(ctx context.Context, req GrantRequest) (*model.Token, error) {
	return s.Ledger.Grant(ctx, req)
}
