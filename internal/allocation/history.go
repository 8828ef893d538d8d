package allocation

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/trainer-seat-allocation/internal/model"
	"github.com/iliyamo/trainer-seat-allocation/internal/repository"
)

// DefaultReactivationWindow bounds how far back eligibility looks.
const DefaultReactivationWindow = 30 * 24 * time.Hour

// EligibleStudent is a reactivation candidate.
type EligibleStudent struct {
	StudentID     uint64                   `json:"student_id"`
	HistoryID     uint64                   `json:"history_id"`
	PlanID        *uint64                  `json:"plan_id,omitempty"`
	TokenID       *uint64                  `json:"token_id,omitempty"`
	ActivatedAt   time.Time                `json:"activated_at"`
	DeactivatedAt time.Time                `json:"deactivated_at"`
	Reason        model.DeactivationReason `json:"reason"`
	// HasLiveToken is set when the student still holds an unexpired
	// token and would not consume new capacity.
	HasLiveToken bool `json:"has_live_token"`
}

// History writes and reads the deactivation log.
type History struct {
	store    HistoryStore
	students StudentDirectory
	ledger   *Ledger
	window   time.Duration
	now      Clock
}

func NewHistory(store HistoryStore, students StudentDirectory, ledger *Ledger, window time.Duration, now Clock) *History {
	if window <= 0 {
		window = DefaultReactivationWindow
	}
	if now == nil {
		now = systemClock
	}
	return &History{store: store, students: students, ledger: ledger, window: window, now: now}
}

// Record appends rec.  CanBeReactivated is always derived from the
// reason; callers cannot override it.
func (h *History) Record(ctx context.Context, rec *model.DeactivationRecord) error {
	if rec.DeactivatedAt.IsZero() {
		rec.DeactivatedAt = h.now()
	}
	rec.CanBeReactivated = rec.Reason.Reactivatable()
	return internal("history.record", h.store.AppendDeactivation(ctx, rec))
}

// EligibleStudents lists students that were active, lost their seat for
// a reactivatable reason within the window, and are still inactive.
// One entry per student from its most recent such record, most recently
// deactivated first.
func (h *History) EligibleStudents(ctx context.Context, trainerID uint64) ([]EligibleStudent, error) {
	const op = "history.eligible"
	since := h.now().Add(-h.window)
	rows, err := h.store.ListDeactivationsSince(ctx, trainerID, since)
	if err != nil {
		return nil, internal(op, err)
	}

	out := []EligibleStudent{}
	seen := make(map[uint64]bool, len(rows))
	for _, rec := range rows {
		if !rec.WasActive || !rec.CanBeReactivated || rec.DeactivatedAt.Before(since) {
			continue
		}
		if seen[rec.StudentID] {
			continue
		}
		seen[rec.StudentID] = true

		st, err := h.students.GetStudent(ctx, rec.StudentID)
		if errors.Is(err, repository.ErrStudentNotFound) {
			continue
		}
		if err != nil {
			return nil, internal(op, err)
		}
		if st.TrainerID != trainerID || st.IsActive() {
			continue
		}
		live, err := h.ledger.FindAssignedToken(ctx, trainerID, rec.StudentID)
		if err != nil {
			return nil, err
		}
		out = append(out, EligibleStudent{
			StudentID:     rec.StudentID,
			HistoryID:     rec.ID,
			PlanID:        rec.PlanID,
			TokenID:       rec.TokenID,
			ActivatedAt:   rec.ActivatedAt,
			DeactivatedAt: rec.DeactivatedAt,
			Reason:        rec.Reason,
			HasLiveToken:  live != nil,
		})
	}
	return out, nil
}
