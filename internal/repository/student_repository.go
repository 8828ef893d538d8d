package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/trainer-seat-allocation/internal/database"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
)

// StudentRepo exposes the three student operations seat allocation
// needs.  Profile fields are owned by the CRUD layer and never touched.
type StudentRepo struct{ DB *sql.DB }

func NewStudentRepo(db *sql.DB) *StudentRepo { return &StudentRepo{DB: db} }

// GetStudent fetches a student by id.
func (r *StudentRepo) GetStudent(ctx context.Context, id uint64) (*model.Student, error) {
	var (
		s      model.Student
		status string
	)
	err := database.Conn(ctx, r.DB).QueryRowContext(ctx,
		"SELECT id, trainer_id, status FROM students WHERE id=? LIMIT 1", id,
	).Scan(&s.ID, &s.TrainerID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStudentNotFound
	}
	if err != nil {
		return nil, err
	}
	if s.Status, err = model.ParseStudentStatus(status); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetStudentStatus flips a student's status.
func (r *StudentRepo) SetStudentStatus(ctx context.Context, id uint64, status model.StudentStatus) error {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		"UPDATE students SET status=? WHERE id=?", string(status), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// MySQL reports 0 rows when the value is unchanged; tell that
		// apart from a missing row.
		if _, err := r.GetStudent(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ListActiveStudents returns the active students of a trainer.
func (r *StudentRepo) ListActiveStudents(ctx context.Context, trainerID uint64) ([]model.Student, error) {
	rows, err := database.Conn(ctx, r.DB).QueryContext(ctx,
		"SELECT id, trainer_id, status FROM students WHERE trainer_id=? AND status='active' ORDER BY id", trainerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Student, 0)
	for rows.Next() {
		var (
			s      model.Student
			status string
		)
		if err := rows.Scan(&s.ID, &s.TrainerID, &status); err != nil {
			return nil, err
		}
		s.Status = model.StudentStatus(status)
		out = append(out, s)
	}
	return out, rows.Err()
}
