// Package allocation decides how many students a trainer may keep
// active, which resource backs each of them and how that backing is
// renegotiated when the trainer's subscription changes.
//
// Components form a strict dependency graph: PlanResolver and Ledger are
// leaves, Validator composes both, Assigner uses Validator and Ledger,
// and Engine drives Assigner and History.  Every store is consumed
// through the interfaces below and always queried scoped to one trainer.
package allocation

import (
	"context"
	"time"

	"github.com/iliyamo/trainer-seat-allocation/internal/model"
	"github.com/iliyamo/trainer-seat-allocation/internal/queue"
)

// PlanCatalog resolves plans by id.
type PlanCatalog interface {
	GetPlan(ctx context.Context, id uint64) (*model.Plan, error)
}

// SubscriptionStore reads and replaces trainer subscriptions.
type SubscriptionStore interface {
	// GetActiveSubscription returns nil, nil when the trainer has none.
	GetActiveSubscription(ctx context.Context, trainerID uint64) (*model.Subscription, error)
	// ReplaceSubscription makes sub the trainer's only active subscription.
	ReplaceSubscription(ctx context.Context, sub *model.Subscription) error
	// LockTrainer holds the trainer's row lock until the surrounding
	// transaction ends.  Capacity reads that follow it in the same
	// transaction see every activation committed before it.
	LockTrainer(ctx context.Context, trainerID uint64) error
}

// StudentDirectory is the narrow view of the student CRUD layer.
type StudentDirectory interface {
	GetStudent(ctx context.Context, id uint64) (*model.Student, error)
	SetStudentStatus(ctx context.Context, id uint64, status model.StudentStatus) error
	ListActiveStudents(ctx context.Context, trainerID uint64) ([]model.Student, error)
}

// TokenStore persists tokens.  ClaimToken and DecrementToken are
// conditional writes and report false when the row changed underneath.
type TokenStore interface {
	CreateToken(ctx context.Context, t *model.Token) error
	GetToken(ctx context.Context, id uint64) (*model.Token, error)
	ListAssignable(ctx context.Context, trainerID uint64, now time.Time) ([]model.Token, error)
	ListAssigned(ctx context.Context, trainerID uint64) ([]model.Token, error)
	FindAssigned(ctx context.Context, trainerID, studentID uint64) ([]model.Token, error)
	ClaimToken(ctx context.Context, tokenID, studentID uint64, at time.Time) (bool, error)
	DecrementToken(ctx context.Context, tokenID uint64, by int) (bool, error)
	ReleaseToken(ctx context.Context, tokenID uint64) error
	RetireToken(ctx context.Context, tokenID uint64) error
	RetireSubscriptionTokens(ctx context.Context, subscriptionID uint64) (int64, error)
}

// HistoryStore is the append-only deactivation log.
type HistoryStore interface {
	AppendDeactivation(ctx context.Context, rec *model.DeactivationRecord) error
	// ListDeactivationsSince returns rows newest first.
	ListDeactivationsSince(ctx context.Context, trainerID uint64, since time.Time) ([]model.DeactivationRecord, error)
}

// Transactor runs fn atomically.  Nested calls join the outer transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TrainerLocker serialises plan transitions of one trainer.
type TrainerLocker interface {
	Lock(ctx context.Context, trainerID uint64) (unlock func(), err error)
}

// EventPublisher receives events after the change they describe commits.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.AllocationEvent) error
}

// Clock returns the current time.  Tests pin it.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, queue.AllocationEvent) error { return nil }
