package model

import "time"

// Plan is a catalog entry a trainer can subscribe to.  The seat limit
// is the number of students that may be active at once while a
// subscription to this plan is live.  Plans are never edited once a
// subscription references them; a new tier is a new row.
//
// Fields:
//  ID           – primary key identifier.
//  Name         – display name of the tier.
//  SeatLimit    – maximum concurrently active students.
//  DurationDays – validity of a subscription started on this plan.
//  IsActive     – whether the plan can still be purchased.
//  CreatedAt    – creation timestamp.
type Plan struct {
	ID           uint64    `json:"id"`            // plans.id
	Name         string    `json:"name"`          // plans.name
	SeatLimit    int       `json:"seat_limit"`    // plans.seat_limit
	DurationDays int       `json:"duration_days"` // plans.duration_days
	IsActive     bool      `json:"is_active"`     // plans.is_active
	CreatedAt    time.Time `json:"created_at"`    // plans.created_at
}

// Duration returns the validity window of a subscription on this plan.
func (p Plan) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}
