package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/trainer-seat-allocation/internal/database"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
)

// HistoryRepo appends to and reads student_deactivation_history.  The
// table is append-only: there is deliberately no update or delete.
type HistoryRepo struct {
	db *sql.DB
}

// NewHistoryRepo returns a HistoryRepo bound to the given database.
func NewHistoryRepo(db *sql.DB) *HistoryRepo { return &HistoryRepo{db: db} }

// AppendDeactivation inserts one history row and populates rec.ID.
func (r *HistoryRepo) AppendDeactivation(ctx context.Context, rec *model.DeactivationRecord) error {
	res, err := database.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO student_deactivation_history
		   (trainer_id, student_id, plan_id, token_id, activated_at, deactivated_at, reason, was_active, can_be_reactivated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TrainerID, rec.StudentID, nullableID(rec.PlanID), nullableID(rec.TokenID),
		rec.ActivatedAt.UTC(), rec.DeactivatedAt.UTC(), string(rec.Reason), rec.WasActive, rec.CanBeReactivated)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = uint64(id)
	return nil
}

// ListDeactivationsSince returns the trainer's history rows with
// deactivated_at >= since, most recent first.
func (r *HistoryRepo) ListDeactivationsSince(ctx context.Context, trainerID uint64, since time.Time) ([]model.DeactivationRecord, error) {
	const q = `SELECT id, trainer_id, student_id, plan_id, token_id, activated_at, deactivated_at,
	                  reason, was_active, can_be_reactivated
	           FROM student_deactivation_history
	           WHERE trainer_id = ? AND deactivated_at >= ?
	           ORDER BY deactivated_at DESC, id DESC`
	rows, err := database.Conn(ctx, r.db).QueryContext(ctx, q, trainerID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.DeactivationRecord, 0)
	for rows.Next() {
		var (
			rec     model.DeactivationRecord
			planID  sql.NullInt64
			tokenID sql.NullInt64
			reason  string
		)
		if err := rows.Scan(&rec.ID, &rec.TrainerID, &rec.StudentID, &planID, &tokenID,
			&rec.ActivatedAt, &rec.DeactivatedAt, &reason, &rec.WasActive, &rec.CanBeReactivated); err != nil {
			return nil, err
		}
		if rec.Reason, err = model.ParseDeactivationReason(reason); err != nil {
			return nil, err
		}
		if planID.Valid {
			v := uint64(planID.Int64)
			rec.PlanID = &v
		}
		if tokenID.Valid {
			v := uint64(tokenID.Int64)
			rec.TokenID = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
