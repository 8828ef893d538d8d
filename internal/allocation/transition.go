package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/trainer-seat-allocation/internal/lock"
	"github.com/iliyamo/trainer-seat-allocation/internal/logging"
	"github.com/iliyamo/trainer-seat-allocation/internal/metrics"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
	"github.com/iliyamo/trainer-seat-allocation/internal/queue"
)

// TransitionOptions tunes ProcessPlanTransition.
type TransitionOptions struct {
	// MaxReactivations caps automatic reactivation.  Zero means no cap
	// beyond available capacity.
	MaxReactivations int `json:"max_reactivations"`
}

// TransitionResult summarises a plan change.
type TransitionResult struct {
	TransitionType          model.TransitionType `json:"transition_type"`
	PreviousPlanID          *uint64              `json:"previous_plan_id,omitempty"`
	NewPlanID               uint64               `json:"new_plan_id"`
	SubscriptionID          uint64               `json:"subscription_id"`
	StudentsArchived        int                  `json:"students_archived"`
	StudentsReactivated     int                  `json:"students_reactivated"`
	RequiresManualSelection int                  `json:"requires_manual_selection"`
	EligibleStudents        []EligibleStudent    `json:"eligible_students,omitempty"`
	AvailableSlots          int                  `json:"available_slots"`
	Message                 string               `json:"message"`
	Errors                  []ItemError          `json:"errors,omitempty"`
}

// ReactivationResult summarises a manual reactivation batch.
type ReactivationResult struct {
	Success          bool        `json:"success"`
	ReactivatedCount int         `json:"reactivated_count"`
	Code             Code        `json:"code,omitempty"`
	Errors           []ItemError `json:"errors"`
}

// ClassifyTransition derives the transition type from the current
// subscription and the plan being purchased.  Equal seat limits on a
// different plan count as a renewal.
func ClassifyTransition(current *model.Subscription, currentPlan, next *model.Plan) model.TransitionType {
	if current == nil || currentPlan == nil {
		return model.TransitionFirstTime
	}
	switch {
	case next.ID == current.PlanID:
		return model.TransitionRenewal
	case next.SeatLimit > currentPlan.SeatLimit:
		return model.TransitionUpgrade
	case next.SeatLimit < currentPlan.SeatLimit:
		return model.TransitionDowngrade
	}
	return model.TransitionRenewal
}

// Engine orchestrates plan transitions and reactivation.
type Engine struct {
	plans     PlanCatalog
	subs      SubscriptionStore
	students  StudentDirectory
	resolver  *PlanResolver
	ledger    *Ledger
	validator *Validator
	assigner  *Assigner
	history   *History
	tx        Transactor
	locker    TrainerLocker
	events    EventPublisher
	now       Clock
}

// ProcessPlanTransition switches trainerID to newPlanID.  The archive
// step and the subscription swap commit together; reactivation runs in
// a second transaction so that a failing candidate never rolls back the
// archive.  Events are published after both commit.
func (e *Engine) ProcessPlanTransition(ctx context.Context, trainerID, newPlanID uint64, opts TransitionOptions) (TransitionResult, error) {
	const op = "transition"
	lg := logging.FromContext(ctx).With().
		Uint64("trainer_id", trainerID).
		Uint64("plan_id", newPlanID).
		Logger()

	if opts.MaxReactivations < 0 {
		return TransitionResult{}, errorf(CodeInvalidRequest, op, "max_reactivations must not be negative")
	}

	unlock, err := e.locker.Lock(ctx, trainerID)
	switch {
	case errors.Is(err, lock.ErrLocked):
		return TransitionResult{}, newError(CodeTransitionInProgress, op, err)
	case err != nil:
		lg.Warn().Err(err).Msg("transition lock unavailable; continuing unlocked")
	default:
		defer unlock()
	}

	next, err := e.plans.GetPlan(ctx, newPlanID)
	if err != nil {
		return TransitionResult{}, internal(op, err)
	}
	if !next.IsActive {
		return TransitionResult{}, errorf(CodePlanNotFound, op, "plan %d is not offered", newPlanID)
	}

	res := TransitionResult{NewPlanID: next.ID}
	err = inTrainerTx(ctx, e.tx, e.subs, trainerID, func(ctx context.Context) error {
		status, err := e.resolver.ResolveCurrentPlan(ctx, trainerID)
		if err != nil {
			return err
		}
		res.TransitionType = ClassifyTransition(status.Subscription, status.Plan, next)
		if status.Plan != nil {
			prev := status.Plan.ID
			res.PreviousPlanID = &prev
		}
		if res.TransitionType.Archives() {
			n, err := e.archive(ctx, trainerID, status)
			if err != nil {
				return err
			}
			res.StudentsArchived = n
			if _, err := e.ledger.RetireSubscriptionTokens(ctx, status.Subscription.ID); err != nil {
				return err
			}
		}
		now := e.now()
		sub := &model.Subscription{
			TrainerID: trainerID,
			PlanID:    next.ID,
			StartsAt:  now,
			ExpiresAt: now.Add(next.Duration()),
		}
		if err := e.subs.ReplaceSubscription(ctx, sub); err != nil {
			return internal(op, err)
		}
		res.SubscriptionID = sub.ID
		return nil
	})
	if err != nil {
		lg.Error().Err(err).Msg("plan transition aborted")
		return TransitionResult{}, err
	}
	lg = lg.With().Str("transition", string(res.TransitionType)).Logger()

	var reactivated []uint64
	switch {
	case res.TransitionType.AutoReactivates():
		err = inTrainerTx(ctx, e.tx, e.subs, trainerID, func(ctx context.Context) error {
			eligible, err := e.history.EligibleStudents(ctx, trainerID)
			if err != nil {
				return err
			}
			vd, _, err := e.validator.evaluate(ctx, trainerID, 1)
			if err != nil {
				return err
			}
			ids, itemErrs, err := e.reactivateCandidates(ctx, trainerID, eligible, vd.AvailableSlots, opts.MaxReactivations)
			if err != nil {
				return err
			}
			reactivated, res.Errors = ids, itemErrs
			return nil
		})
		if err != nil {
			// The new subscription is already committed; report what
			// happened and let the caller reactivate manually.
			lg.Error().Err(err).Msg("automatic reactivation failed")
			return TransitionResult{}, err
		}
		res.StudentsReactivated = len(reactivated)
	case res.TransitionType == model.TransitionDowngrade:
		eligible, err := e.history.EligibleStudents(ctx, trainerID)
		if err != nil {
			return TransitionResult{}, err
		}
		res.EligibleStudents = eligible
		res.RequiresManualSelection = len(eligible)
	}

	vd, _, err := e.validator.evaluate(ctx, trainerID, 1)
	if err != nil {
		return TransitionResult{}, err
	}
	res.AvailableSlots = vd.AvailableSlots
	res.Message = transitionMessage(res, next)

	metrics.RecordTransition(string(res.TransitionType), res.StudentsArchived)
	metrics.RecordReactivations("auto", res.StudentsReactivated, itemCodes(res.Errors))
	lg.Info().
		Int("archived", res.StudentsArchived).
		Int("reactivated", res.StudentsReactivated).
		Int("manual_selection", res.RequiresManualSelection).
		Int("available_slots", res.AvailableSlots).
		Msg("plan transition completed")

	ev := queue.NewEvent(queue.EventTransitionCompleted, trainerID, e.now())
	ev.TransitionType = string(res.TransitionType)
	ev.PlanID = next.ID
	ev.StudentIDs = reactivated
	ev.Count = res.StudentsArchived
	ev.Detail = res.Message
	e.publish(ctx, ev)
	if len(reactivated) > 0 {
		ev := queue.NewEvent(queue.EventStudentsReactivated, trainerID, e.now())
		ev.StudentIDs = reactivated
		ev.Count = len(reactivated)
		ev.Detail = "auto"
		e.publish(ctx, ev)
	}
	return res, nil
}

// archive moves every active student to inactive with a plan_changed
// history record capturing what backed it.
func (e *Engine) archive(ctx context.Context, trainerID uint64, status PlanStatus) (int, error) {
	now := e.now()
	for _, st := range status.activeStudents {
		rec, err := e.deactivationRecord(ctx, trainerID, st.ID, status, model.ReasonPlanChanged, now)
		if err != nil {
			return 0, err
		}
		if err := e.history.Record(ctx, rec); err != nil {
			return 0, err
		}
		if err := e.students.SetStudentStatus(ctx, st.ID, model.StudentInactive); err != nil {
			return 0, internal("transition.archive", err)
		}
	}
	return len(status.activeStudents), nil
}

func (e *Engine) deactivationRecord(ctx context.Context, trainerID, studentID uint64, status PlanStatus,
	reason model.DeactivationReason, now time.Time) (*model.DeactivationRecord, error) {
	tok, err := e.ledger.LatestAssignment(ctx, trainerID, studentID)
	if err != nil {
		return nil, err
	}
	rec := &model.DeactivationRecord{
		TrainerID:     trainerID,
		StudentID:     studentID,
		DeactivatedAt: now,
		Reason:        reason,
		WasActive:     true,
	}
	if status.Plan != nil {
		id := status.Plan.ID
		rec.PlanID = &id
	}
	switch {
	case tok != nil && tok.AssignedAt != nil:
		id := tok.ID
		rec.TokenID = &id
		rec.ActivatedAt = *tok.AssignedAt
	case status.Subscription != nil:
		rec.ActivatedAt = status.Subscription.StartsAt
	default:
		rec.ActivatedAt = now
	}
	return rec, nil
}

// reactivateCandidates walks candidates in order.  slots is the free
// capacity; a student who still holds its own standalone token comes
// back without spending any of it.  max caps the number of reactivated
// students when positive.  Business-rule failures are collected per
// student; datastore failures abort the batch.
func (e *Engine) reactivateCandidates(ctx context.Context, trainerID uint64, candidates []EligibleStudent, slots, max int) ([]uint64, []ItemError, error) {
	ids := []uint64{}
	itemErrs := []ItemError{}
	for _, c := range candidates {
		if max > 0 && len(ids) >= max {
			break
		}
		if slots <= 0 {
			if !c.HasLiveToken {
				continue
			}
			free, err := e.holdsStandalone(ctx, trainerID, c.StudentID)
			if err != nil {
				return nil, nil, err
			}
			if !free {
				continue
			}
		}
		st, err := e.students.GetStudent(ctx, c.StudentID)
		if err != nil {
			err = internal("reactivate", err)
			if isSoft(err) {
				itemErrs = append(itemErrs, itemError(c.StudentID, err))
				continue
			}
			return nil, nil, err
		}
		res, err := e.reactivateOne(ctx, trainerID, *st)
		if err != nil {
			if isSoft(err) {
				itemErrs = append(itemErrs, itemError(c.StudentID, err))
				continue
			}
			return nil, nil, err
		}
		if !res.Reused || res.ResourceType != ResourceToken {
			slots--
		}
		ids = append(ids, c.StudentID)
	}
	return ids, itemErrs, nil
}

func (e *Engine) holdsStandalone(ctx context.Context, trainerID, studentID uint64) (bool, error) {
	tok, err := e.ledger.FindAssignedToken(ctx, trainerID, studentID)
	if err != nil {
		return false, err
	}
	return tok != nil && tok.Kind == model.TokenKindStandalone, nil
}

// reactivateOne binds a resource and then flips status.  The caller owns
// the transaction.
func (e *Engine) reactivateOne(ctx context.Context, trainerID uint64, st model.Student) (AssignmentResult, error) {
	res, err := e.assigner.AssignResource(ctx, trainerID, st)
	if err != nil {
		return res, err
	}
	if err := e.students.SetStudentStatus(ctx, st.ID, model.StudentActive); err != nil {
		return res, internal("reactivate", err)
	}
	return res, nil
}

// ManuallyReactivateStudents reactivates an operator-chosen set.  The
// whole batch is refused up front when capacity does not cover every
// requested student; after that, per-student failures are reported
// without undoing the successes.
func (e *Engine) ManuallyReactivateStudents(ctx context.Context, trainerID uint64, studentIDs []uint64) (ReactivationResult, error) {
	const op = "reactivate.manual"
	ids := dedupe(studentIDs)
	if len(ids) == 0 {
		return ReactivationResult{}, errorf(CodeInvalidRequest, op, "no student ids given")
	}
	lg := logging.FromContext(ctx).With().Uint64("trainer_id", trainerID).Logger()

	res := ReactivationResult{Errors: []ItemError{}}
	var reactivated []uint64
	err := inTrainerTx(ctx, e.tx, e.subs, trainerID, func(ctx context.Context) error {
		vd, _, err := e.validator.evaluate(ctx, trainerID, len(ids))
		if err != nil {
			return err
		}
		if !vd.IsValid {
			res.Code = CodeInsufficientResources
			res.Errors = append(res.Errors, ItemError{
				Code:    CodeInsufficientResources,
				Message: fmt.Sprintf("%d slot(s) available for %d student(s)", vd.AvailableSlots, len(ids)),
			})
			return nil
		}
		for _, id := range ids {
			st, err := e.students.GetStudent(ctx, id)
			if err != nil {
				err = internal(op, err)
				if isSoft(err) {
					res.Errors = append(res.Errors, itemError(id, err))
					continue
				}
				return err
			}
			if st.TrainerID != trainerID {
				res.Errors = append(res.Errors, itemError(id, errorf(CodeStudentNotOwned, op, "student %d belongs to another trainer", id)))
				continue
			}
			if st.IsActive() {
				res.Errors = append(res.Errors, itemError(id, errorf(CodeStudentAlreadyActive, op, "student %d is already active", id)))
				continue
			}
			if _, err := e.reactivateOne(ctx, trainerID, *st); err != nil {
				if isSoft(err) {
					res.Errors = append(res.Errors, itemError(id, err))
					continue
				}
				return err
			}
			reactivated = append(reactivated, id)
		}
		return nil
	})
	if err != nil {
		lg.Error().Err(err).Msg("manual reactivation aborted")
		return ReactivationResult{}, err
	}
	res.ReactivatedCount = len(reactivated)
	res.Success = res.ReactivatedCount > 0

	metrics.RecordReactivations("manual", res.ReactivatedCount, itemCodes(res.Errors))
	logItems(lg.Info(), res.Errors).
		Int("requested", len(ids)).
		Int("reactivated", res.ReactivatedCount).
		Msg("manual reactivation")
	if len(reactivated) > 0 {
		ev := queue.NewEvent(queue.EventStudentsReactivated, trainerID, e.now())
		ev.StudentIDs = reactivated
		ev.Count = len(reactivated)
		ev.Detail = "manual"
		e.publish(ctx, ev)
	}
	return res, nil
}

// DeactivateStudent removes a student from the active set and records
// why.  Manual removals release the student's token back to the pool.
func (e *Engine) DeactivateStudent(ctx context.Context, trainerID, studentID uint64, reason model.DeactivationReason) (*model.DeactivationRecord, error) {
	const op = "deactivate"
	if _, err := model.ParseDeactivationReason(string(reason)); err != nil {
		return nil, newError(CodeInvalidRequest, op, err)
	}
	var rec *model.DeactivationRecord
	err := inTrainerTx(ctx, e.tx, e.subs, trainerID, func(ctx context.Context) error {
		st, err := e.students.GetStudent(ctx, studentID)
		if err != nil {
			return internal(op, err)
		}
		if st.TrainerID != trainerID {
			return errorf(CodeStudentNotOwned, op, "student %d belongs to another trainer", studentID)
		}
		if !st.IsActive() {
			return errorf(CodeStudentNotActive, op, "student %d is not active", studentID)
		}
		status, err := e.resolver.ResolveCurrentPlan(ctx, trainerID)
		if err != nil {
			return err
		}
		rec, err = e.deactivationRecord(ctx, trainerID, studentID, status, reason, e.now())
		if err != nil {
			return err
		}
		if err := e.history.Record(ctx, rec); err != nil {
			return err
		}
		if err := e.students.SetStudentStatus(ctx, studentID, model.StudentInactive); err != nil {
			return internal(op, err)
		}
		if reason == model.ReasonManual && rec.TokenID != nil {
			return e.ledger.Release(ctx, *rec.TokenID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info().
		Uint64("trainer_id", trainerID).
		Uint64("student_id", studentID).
		Str("reason", string(reason)).
		Msg("student deactivated")
	ev := queue.NewEvent(queue.EventStudentDeactivated, trainerID, e.now())
	ev.StudentIDs = []uint64{studentID}
	ev.Count = 1
	ev.Detail = string(reason)
	e.publish(ctx, ev)
	return rec, nil
}

func (e *Engine) publish(ctx context.Context, ev queue.AllocationEvent) {
	if err := e.events.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Str("event", string(ev.Type)).Msg("event not published")
	}
}

func transitionMessage(res TransitionResult, next *model.Plan) string {
	switch res.TransitionType {
	case model.TransitionFirstTime:
		return fmt.Sprintf("Plan %s activated with %d seat(s).", next.Name, next.SeatLimit)
	case model.TransitionRenewal:
		return fmt.Sprintf("Plan %s renewed: %d of %d student(s) reactivated.",
			next.Name, res.StudentsReactivated, res.StudentsArchived)
	case model.TransitionUpgrade:
		return fmt.Sprintf("Upgraded to %s: %d student(s) reactivated, %d slot(s) available.",
			next.Name, res.StudentsReactivated, res.AvailableSlots)
	case model.TransitionDowngrade:
		return fmt.Sprintf("Downgraded to %s (%d seats): choose up to %d of %d student(s) to reactivate.",
			next.Name, next.SeatLimit, min(res.AvailableSlots, res.RequiresManualSelection), res.RequiresManualSelection)
	}
	return ""
}

func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]bool, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func itemCodes(errs []ItemError) []string {
	codes := make([]string, 0, len(errs))
	for _, ie := range errs {
		codes = append(codes, string(ie.Code))
	}
	return codes
}

func logItems(ev *zerolog.Event, errs []ItemError) *zerolog.Event {
	if len(errs) == 0 {
		return ev
	}
	return ev.Strs("error_codes", itemCodes(errs))
}
