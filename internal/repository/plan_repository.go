package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/trainer-seat-allocation/internal/database"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
)

// PlanRepo reads the plan catalog.  Plans are written by the billing
// back office, so this repository is read-only.
type PlanRepo struct {
	db *sql.DB
}

// NewPlanRepo returns a PlanRepo bound to the given database.
func NewPlanRepo(db *sql.DB) *PlanRepo { return &PlanRepo{db: db} }

const planColumns = `id, name, seat_limit, duration_days, is_active, created_at`

// GetPlan fetches a plan by id.  It returns ErrPlanNotFound when the row
// does not exist.
func (r *PlanRepo) GetPlan(ctx context.Context, id uint64) (*model.Plan, error) {
	var p model.Plan
	err := database.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE id = ? LIMIT 1`, id,
	).Scan(&p.ID, &p.Name, &p.SeatLimit, &p.DurationDays, &p.IsActive, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActivePlans returns purchasable plans ordered by seat limit.
func (r *PlanRepo) ListActivePlans(ctx context.Context) ([]model.Plan, error) {
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE is_active = 1 ORDER BY seat_limit, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	plans := make([]model.Plan, 0)
	for rows.Next() {
		var p model.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.SeatLimit, &p.DurationDays, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}
