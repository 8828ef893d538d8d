package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/trainer-seat-allocation/internal/database"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
)

// SubscriptionRepo persists trainer-plan bindings and keeps
// trainers.current_subscription_id pointing at the active one.
type SubscriptionRepo struct {
	db *sql.DB
}

// NewSubscriptionRepo returns a SubscriptionRepo bound to the given database.
func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo { return &SubscriptionRepo{db: db} }

// GetActiveSubscription returns the trainer's active subscription, or
// nil without error when the trainer has none.  Expired subscriptions
// keep their active flag until replaced; callers compare ExpiresAt.
func (r *SubscriptionRepo) GetActiveSubscription(ctx context.Context, trainerID uint64) (*model.Subscription, error) {
	const q = `SELECT id, trainer_id, plan_id, starts_at, expires_at, active, created_at
	           FROM subscriptions
	           WHERE trainer_id = ? AND active = 1
	           ORDER BY starts_at DESC, id DESC
	           LIMIT 1`
	var s model.Subscription
	err := database.Conn(ctx, r.db).QueryRowContext(ctx, q, trainerID).Scan(
		&s.ID, &s.TrainerID, &s.PlanID, &s.StartsAt, &s.ExpiresAt, &s.Active, &s.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ReplaceSubscription deactivates every active subscription of the
// trainer, inserts sub as the new active one and repoints the trainer
// row.  It populates sub.ID.  Call it inside a transaction: the three
// statements must land together.
func (r *SubscriptionRepo) ReplaceSubscription(ctx context.Context, sub *model.Subscription) error {
	conn := database.Conn(ctx, r.db)
	if _, err := conn.ExecContext(ctx,
		`UPDATE subscriptions SET active = 0 WHERE trainer_id = ? AND active = 1`, sub.TrainerID); err != nil {
		return err
	}
	res, err := conn.ExecContext(ctx,
		`INSERT INTO subscriptions (trainer_id, plan_id, starts_at, expires_at, active) VALUES (?, ?, ?, ?, 1)`,
		sub.TrainerID, sub.PlanID, sub.StartsAt.UTC(), sub.ExpiresAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	sub.ID = uint64(id)
	sub.Active = true
	// Trainers created by the profile layer may not have a row here yet.
	_, err = conn.ExecContext(ctx,
		`INSERT INTO trainers (id, current_subscription_id) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE current_subscription_id = VALUES(current_subscription_id)`,
		sub.TrainerID, sub.ID)
	return err
}

// LockTrainer takes an exclusive lock on the trainer row, creating it
// when missing, and holds it until the transaction ends.  It must be the
// first statement of the transaction: under REPEATABLE READ the snapshot
// for the plain reads that follow is taken after the lock is granted.
// Outside a transaction the lock would be released at once, so it is a
// no-op.
func (r *SubscriptionRepo) LockTrainer(ctx context.Context, trainerID uint64) error {
	if !database.InTx(ctx) {
		return nil
	}
	_, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO trainers (id) VALUES (?) ON DUPLICATE KEY UPDATE id = id`, trainerID)
	return err
}
