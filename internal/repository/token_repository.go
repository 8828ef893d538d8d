package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/trainer-seat-allocation/internal/database"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
)

// TokenRepo persists capacity tokens.  Every write that consumes
// capacity is conditional on the row still being in the state the
// caller read, so two requests racing for the last unit cannot both
// win: the loser sees RowsAffected == 0.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

const tokenColumns = `id, kind, trainer_id, student_id, subscription_id, quantity, expires_at,
	active, assigned_at, granted_by, grant_reason, grant_ref, created_at, updated_at`

func scanToken(sc interface{ Scan(...any) error }) (model.Token, error) {
	var (
		t          model.Token
		kind       string
		studentID  sql.NullInt64
		subID      sql.NullInt64
		assignedAt sql.NullTime
	)
	err := sc.Scan(&t.ID, &kind, &t.TrainerID, &studentID, &subID, &t.Quantity, &t.ExpiresAt,
		&t.Active, &assignedAt, &t.Provenance.GrantedBy, &t.Provenance.Reason, &t.Provenance.Reference,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if t.Kind, err = model.ParseTokenKind(kind); err != nil {
		return t, err
	}
	if studentID.Valid {
		v := uint64(studentID.Int64)
		t.StudentID = &v
	}
	if subID.Valid {
		v := uint64(subID.Int64)
		t.SubscriptionID = &v
	}
	if assignedAt.Valid {
		v := assignedAt.Time.UTC()
		t.AssignedAt = &v
	}
	return t, nil
}

func (r *TokenRepo) list(ctx context.Context, q string, args ...any) ([]model.Token, error) {
	rows, err := database.Conn(ctx, r.DB).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateToken inserts t and populates its ID.
func (r *TokenRepo) CreateToken(ctx context.Context, t *model.Token) error {
	var assignedAt any
	if t.AssignedAt != nil {
		assignedAt = t.AssignedAt.UTC()
	}
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		`INSERT INTO tokens (kind, trainer_id, student_id, subscription_id, quantity, expires_at, active,
		                     assigned_at, granted_by, grant_reason, grant_ref)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(t.Kind), t.TrainerID, nullableID(t.StudentID), nullableID(t.SubscriptionID), t.Quantity,
		t.ExpiresAt.UTC(), t.Active, assignedAt,
		t.Provenance.GrantedBy, t.Provenance.Reason, t.Provenance.Reference)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// GetToken fetches a token by id.
func (r *TokenRepo) GetToken(ctx context.Context, id uint64) (*model.Token, error) {
	t, err := scanToken(database.Conn(ctx, r.DB).QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM tokens WHERE id = ? LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListAssignable returns active, unexpired, unassigned tokens of the
// trainer, soonest expiration first.  Inside a transaction the rows are
// locked so the split that follows cannot interleave with another.
func (r *TokenRepo) ListAssignable(ctx context.Context, trainerID uint64, now time.Time) ([]model.Token, error) {
	q := `SELECT ` + tokenColumns + `
	      FROM tokens
	      WHERE trainer_id = ? AND active = 1 AND student_id IS NULL AND quantity > 0 AND expires_at > ?
	      ORDER BY expires_at, id`
	if database.InTx(ctx) {
		q += ` FOR UPDATE`
	}
	return r.list(ctx, q, trainerID, now.UTC())
}

// ListAssigned returns the active tokens of the trainer that reference a
// student, expired or not, newest assignment first.
func (r *TokenRepo) ListAssigned(ctx context.Context, trainerID uint64) ([]model.Token, error) {
	return r.list(ctx, `SELECT `+tokenColumns+`
	      FROM tokens
	      WHERE trainer_id = ? AND active = 1 AND student_id IS NOT NULL
	      ORDER BY assigned_at DESC, id DESC`, trainerID)
}

// FindAssigned returns the active tokens referencing one student of the
// trainer, newest assignment first.
func (r *TokenRepo) FindAssigned(ctx context.Context, trainerID, studentID uint64) ([]model.Token, error) {
	return r.list(ctx, `SELECT `+tokenColumns+`
	      FROM tokens
	      WHERE trainer_id = ? AND student_id = ? AND active = 1
	      ORDER BY assigned_at DESC, id DESC`, trainerID, studentID)
}

// ClaimToken assigns a whole token to a student.  It reports false when
// the token was assigned, retired or emptied since it was read.
func (r *TokenRepo) ClaimToken(ctx context.Context, tokenID, studentID uint64, at time.Time) (bool, error) {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		`UPDATE tokens SET student_id = ?, assigned_at = ?
		 WHERE id = ? AND student_id IS NULL AND active = 1 AND expires_at > ?`,
		studentID, at.UTC(), tokenID, at.UTC())
	return affectedOne(res, err)
}

// DecrementToken removes by units from an unassigned token.  It only
// succeeds while the token still holds more than by units, so a split
// never drives a quantity to zero or below.
func (r *TokenRepo) DecrementToken(ctx context.Context, tokenID uint64, by int) (bool, error) {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		`UPDATE tokens SET quantity = quantity - ?
		 WHERE id = ? AND student_id IS NULL AND active = 1 AND quantity > ?`,
		by, tokenID, by)
	return affectedOne(res, err)
}

// ReleaseToken clears the assignment of a token.
func (r *TokenRepo) ReleaseToken(ctx context.Context, tokenID uint64) error {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		`UPDATE tokens SET student_id = NULL, assigned_at = NULL WHERE id = ?`, tokenID)
	ok, err := affectedOne(res, err)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := r.GetToken(ctx, tokenID); err != nil {
			return err
		}
	}
	return nil
}

// RetireToken deactivates a single token.  Plan tokens are retired
// rather than released: their capacity is accounted by the seat limit.
func (r *TokenRepo) RetireToken(ctx context.Context, tokenID uint64) error {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		`UPDATE tokens SET active = 0 WHERE id = ?`, tokenID)
	ok, err := affectedOne(res, err)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := r.GetToken(ctx, tokenID); err != nil {
			return err
		}
	}
	return nil
}

// RetireSubscriptionTokens deactivates every plan token minted under a
// subscription and returns how many rows changed.
func (r *TokenRepo) RetireSubscriptionTokens(ctx context.Context, subscriptionID uint64) (int64, error) {
	res, err := database.Conn(ctx, r.DB).ExecContext(ctx,
		`UPDATE tokens SET active = 0 WHERE subscription_id = ? AND kind = 'plan' AND active = 1`, subscriptionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func affectedOne(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullableID(id *uint64) any {
	if id == nil {
		return nil
	}
	return *id
}
