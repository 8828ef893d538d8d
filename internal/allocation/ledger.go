package allocation

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iliyamo/trainer-seat-allocation/internal/logging"
	"github.com/iliyamo/trainer-seat-allocation/internal/model"
)

// Ledger tracks token capacity.  It has no knowledge of plans: plan
// seats are accounted by the seat limit, the ledger only mints,
// assigns and retires the tokens that record who holds a unit.
type Ledger struct {
	tokens TokenStore
	tx     Transactor
	now    Clock
}

func NewLedger(tokens TokenStore, tx Transactor, now Clock) *Ledger {
	if now == nil {
		now = systemClock
	}
	return &Ledger{tokens: tokens, tx: tx, now: now}
}

// AvailableQuantity sums the unassigned, unexpired, active units of a
// trainer.  An empty kind counts every kind.
func (l *Ledger) AvailableQuantity(ctx context.Context, trainerID uint64, kind model.TokenKind) (int, error) {
	toks, err := l.FindAssignableTokens(ctx, trainerID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, t := range toks {
		if kind == "" || t.Kind == kind {
			total += t.Quantity
		}
	}
	return total, nil
}

// FindAssignableTokens lists assignable tokens, soonest expiry first so
// that units about to lapse are spent before fresh ones.
func (l *Ledger) FindAssignableTokens(ctx context.Context, trainerID uint64) ([]model.Token, error) {
	now := l.now()
	rows, err := l.tokens.ListAssignable(ctx, trainerID, now)
	if err != nil {
		return nil, internal("ledger.list", err)
	}
	out := rows[:0]
	for _, t := range rows {
		if t.AssignableAt(now) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// selectToken picks the earliest-expiring token that covers required.
// A request for a single unit accepts the first token outright.
func selectToken(toks []model.Token, required int) *model.Token {
	for i := range toks {
		if toks[i].Quantity >= required {
			return &toks[i]
		}
	}
	if required == 1 && len(toks) > 0 {
		return &toks[0]
	}
	return nil
}

// Assign binds required units to studentID.  A token with exactly the
// required quantity is claimed whole; a larger one is decremented and a
// new token with the same kind, expiry and provenance is created for
// the student.  Both writes are conditional so a concurrent assignment
// of the same unit surfaces as INSUFFICIENT_RESOURCES instead of an
// overdraw.
func (l *Ledger) Assign(ctx context.Context, trainerID, studentID uint64, required int) (*model.Token, error) {
	const op = "ledger.assign"
	if required < 1 {
		return nil, errorf(CodeInvalidRequest, op, "required quantity %d must be positive", required)
	}

	var assigned *model.Token
	err := l.tx.WithinTx(ctx, func(ctx context.Context) error {
		toks, err := l.FindAssignableTokens(ctx, trainerID)
		if err != nil {
			return err
		}
		total := 0
		for _, t := range toks {
			total += t.Quantity
		}
		if total < required {
			return errorf(CodeInsufficientResources, op, "need %d unit(s), %d available", required, total)
		}
		chosen := selectToken(toks, required)
		if chosen == nil {
			return errorf(CodeNoSuitableToken, op, "no single token holds %d unit(s)", required)
		}

		now := l.now()
		if chosen.Quantity == required {
			ok, err := l.tokens.ClaimToken(ctx, chosen.ID, studentID, now)
			if err != nil {
				return internal(op, err)
			}
			if !ok {
				return errorf(CodeInsufficientResources, op, "token %d was taken concurrently", chosen.ID)
			}
			claimed := *chosen
			claimed.StudentID = &studentID
			claimed.AssignedAt = &now
			assigned = &claimed
			return nil
		}

		ok, err := l.tokens.DecrementToken(ctx, chosen.ID, required)
		if err != nil {
			return internal(op, err)
		}
		if !ok {
			return errorf(CodeInsufficientResources, op, "token %d was drawn down concurrently", chosen.ID)
		}
		split := &model.Token{
			Kind:           chosen.Kind,
			TrainerID:      trainerID,
			StudentID:      &studentID,
			SubscriptionID: chosen.SubscriptionID,
			Quantity:       required,
			ExpiresAt:      chosen.ExpiresAt,
			Active:         true,
			AssignedAt:     &now,
			Provenance:     chosen.Provenance,
		}
		if err := l.tokens.CreateToken(ctx, split); err != nil {
			return internal(op, err)
		}
		logging.FromContext(ctx).Debug().
			Uint64("parent_token_id", chosen.ID).
			Uint64("token_id", split.ID).
			Int("remaining", chosen.Quantity-required).
			Msg("token split")
		assigned = split
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assigned, nil
}

// FindAssignedToken returns the student's live token, or nil.
func (l *Ledger) FindAssignedToken(ctx context.Context, trainerID, studentID uint64) (*model.Token, error) {
	toks, err := l.tokens.FindAssigned(ctx, trainerID, studentID)
	if err != nil {
		return nil, internal("ledger.find_assigned", err)
	}
	now := l.now()
	for i := range toks {
		if toks[i].LiveAt(now) {
			return &toks[i], nil
		}
	}
	return nil, nil
}

// LatestAssignment returns the student's newest active token whether or
// not it has expired.  History records use it to capture provenance.
func (l *Ledger) LatestAssignment(ctx context.Context, trainerID, studentID uint64) (*model.Token, error) {
	toks, err := l.tokens.FindAssigned(ctx, trainerID, studentID)
	if err != nil {
		return nil, internal("ledger.latest_assignment", err)
	}
	var latest *model.Token
	for i := range toks {
		if !toks[i].Active {
			continue
		}
		if latest == nil || assignedAfter(toks[i], *latest) {
			latest = &toks[i]
		}
	}
	return latest, nil
}

func assignedAfter(a, b model.Token) bool {
	var at, bt time.Time
	if a.AssignedAt != nil {
		at = *a.AssignedAt
	}
	if b.AssignedAt != nil {
		bt = *b.AssignedAt
	}
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return a.ID > b.ID
}

// BackingKinds maps each student with an active assigned token to the
// kind of its newest token.  Expired tokens still count: a student
// keeps occupying whatever pool last backed it until deactivated.
func (l *Ledger) BackingKinds(ctx context.Context, trainerID uint64) (map[uint64]model.TokenKind, error) {
	toks, err := l.tokens.ListAssigned(ctx, trainerID)
	if err != nil {
		return nil, internal("ledger.backing_kinds", err)
	}
	latest := make(map[uint64]model.Token, len(toks))
	for _, t := range toks {
		if t.StudentID == nil || !t.Active {
			continue
		}
		cur, ok := latest[*t.StudentID]
		if !ok || assignedAfter(t, cur) {
			latest[*t.StudentID] = t
		}
	}
	kinds := make(map[uint64]model.TokenKind, len(latest))
	for id, t := range latest {
		kinds[id] = t.Kind
	}
	return kinds, nil
}

// Release returns a token's units to its trainer.  Standalone tokens
// become assignable again; plan tokens are retired because the seat
// they stood for is freed by the student's status change alone.
func (l *Ledger) Release(ctx context.Context, tokenID uint64) error {
	const op = "ledger.release"
	t, err := l.tokens.GetToken(ctx, tokenID)
	if err != nil {
		return internal(op, err)
	}
	if t.Kind == model.TokenKindPlan {
		return internal(op, l.tokens.RetireToken(ctx, tokenID))
	}
	return internal(op, l.tokens.ReleaseToken(ctx, tokenID))
}

// RetireSubscriptionTokens deactivates every token minted for a
// superseded subscription.
func (l *Ledger) RetireSubscriptionTokens(ctx context.Context, subscriptionID uint64) (int64, error) {
	n, err := l.tokens.RetireSubscriptionTokens(ctx, subscriptionID)
	if err != nil {
		return 0, internal("ledger.retire_subscription", err)
	}
	return n, nil
}

// MintPlanToken records that studentID occupies a seat of sub.  The
// token expires with the subscription.
func (l *Ledger) MintPlanToken(ctx context.Context, sub *model.Subscription, studentID uint64) (*model.Token, error) {
	now := l.now()
	subID := sub.ID
	t := &model.Token{
		Kind:           model.TokenKindPlan,
		TrainerID:      sub.TrainerID,
		StudentID:      &studentID,
		SubscriptionID: &subID,
		Quantity:       1,
		ExpiresAt:      sub.ExpiresAt,
		Active:         true,
		AssignedAt:     &now,
		Provenance: model.Provenance{
			GrantedBy: "system",
			Reason:    "plan seat",
			Reference: fmt.Sprintf("subscription:%d", sub.ID),
		},
	}
	if err := l.tokens.CreateToken(ctx, t); err != nil {
		return nil, internal("ledger.mint_plan", err)
	}
	return t, nil
}

// Provenance column widths of the tokens table, in characters.
const (
	maxGrantedByLen = 100
	maxReasonLen    = 255
	maxReferenceLen = 100
)

// GrantRequest describes a standalone token grant.
type GrantRequest struct {
	TrainerID uint64
	Quantity  int
	ValidFor  time.Duration
	GrantedBy string
	Reason    string
	Reference string // external id such as an invoice number; generated when empty
}

// Grant adds standalone units to a trainer's pool.
func (l *Ledger) Grant(ctx context.Context, req GrantRequest) (*model.Token, error) {
	const op = "ledger.grant"
	if req.TrainerID == 0 {
		return nil, errorf(CodeInvalidRequest, op, "trainer id is required")
	}
	if req.Quantity < 1 {
		return nil, errorf(CodeInvalidRequest, op, "quantity %d must be positive", req.Quantity)
	}
	if req.ValidFor <= 0 {
		return nil, errorf(CodeInvalidRequest, op, "validity must be positive")
	}
	for _, f := range []struct {
		name, value string
		max         int
	}{
		{"granted_by", req.GrantedBy, maxGrantedByLen},
		{"reason", req.Reason, maxReasonLen},
		{"reference", req.Reference, maxReferenceLen},
	} {
		if n := utf8.RuneCountInString(f.value); n > f.max {
			return nil, errorf(CodeInvalidRequest, op, "%s is %d characters, at most %d allowed", f.name, n, f.max)
		}
	}
	if req.Reference == "" {
		req.Reference = uuid.NewString()
	}
	now := l.now()
	t := &model.Token{
		Kind:      model.TokenKindStandalone,
		TrainerID: req.TrainerID,
		Quantity:  req.Quantity,
		ExpiresAt: now.Add(req.ValidFor),
		Active:    true,
		Provenance: model.Provenance{
			GrantedBy: req.GrantedBy,
			Reason:    req.Reason,
			Reference: req.Reference,
		},
	}
	if err := l.tokens.CreateToken(ctx, t); err != nil {
		return nil, internal(op, err)
	}
	logging.FromContext(ctx).Info().
		Uint64("trainer_id", req.TrainerID).
		Uint64("token_id", t.ID).
		Int("quantity", t.Quantity).
		Str("reference", t.Provenance.Reference).
		Msg("tokens granted")
	return t, nil
}
