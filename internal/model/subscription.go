package model

import "time"

// Subscription binds a trainer to a plan for a period of time.  At most
// one subscription per trainer has Active set.  Expiry is not a stored
// state: a subscription is expired when ExpiresAt <= now, evaluated on
// every read.
//
// Fields:
//  ID        – primary key identifier.
//  TrainerID – owning trainer.
//  PlanID    – plan the trainer paid for.
//  StartsAt  – when the subscription started.
//  ExpiresAt – when the subscription stops granting seats.
//  Active    – whether this is the trainer's current subscription.
//  CreatedAt – creation timestamp.
type Subscription struct {
	ID        uint64    // subscriptions.id
	TrainerID uint64    // subscriptions.trainer_id
	PlanID    uint64    // subscriptions.plan_id
	StartsAt  time.Time // subscriptions.starts_at
	ExpiresAt time.Time // subscriptions.expires_at
	Active    bool      // subscriptions.active
	CreatedAt time.Time // subscriptions.created_at
}

// ExpiredAt reports whether the subscription no longer grants seats at t.
func (s Subscription) ExpiredAt(t time.Time) bool {
	return !s.ExpiresAt.After(t)
}

// Trainer is the quota-owning account.  Only the subscription pointer
// matters to seat allocation; everything else lives in the profile layer.
type Trainer struct {
	ID                    uint64  // trainers.id
	CurrentSubscriptionID *uint64 // trainers.current_subscription_id (nullable)
}
