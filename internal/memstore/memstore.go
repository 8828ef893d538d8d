// Package memstore is an in-memory implementation of every store the
// allocation service consumes.  It backs the CLI simulator and the
// service tests.  Transactions serialise on a single lock and roll back
// by restoring a snapshot taken when they began.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/trainer-seat-allocation/internal/model"
	"github.com/iliyamo/trainer-seat-allocation/internal/repository"
)

type txKey struct{}

type state struct {
	plans    map[uint64]model.Plan
	subs     map[uint64]model.Subscription
	trainers map[uint64]model.Trainer
	students map[uint64]model.Student
	tokens   map[uint64]model.Token
	history  []model.DeactivationRecord
	nextID   uint64
}

func (s *state) clone() *state {
	c := &state{
		plans:    make(map[uint64]model.Plan, len(s.plans)),
		subs:     make(map[uint64]model.Subscription, len(s.subs)),
		trainers: make(map[uint64]model.Trainer, len(s.trainers)),
		students: make(map[uint64]model.Student, len(s.students)),
		tokens:   make(map[uint64]model.Token, len(s.tokens)),
		history:  append([]model.DeactivationRecord(nil), s.history...),
		nextID:   s.nextID,
	}
	for k, v := range s.plans {
		c.plans[k] = v
	}
	for k, v := range s.subs {
		c.subs[k] = v
	}
	for k, v := range s.trainers {
		c.trainers[k] = v
	}
	for k, v := range s.students {
		c.students[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	return c
}

// Store holds all rows.  Values are copied in and out; callers never
// alias stored rows.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	st   *state
	now  func() time.Time
}

// New returns an empty store stamping CreatedAt with now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{
		st: &state{
			plans:    map[uint64]model.Plan{},
			subs:     map[uint64]model.Subscription{},
			trainers: map[uint64]model.Trainer{},
			students: map[uint64]model.Student{},
			tokens:   map[uint64]model.Token{},
		},
		now: now,
	}
}

func (s *Store) id() uint64 {
	s.st.nextID++
	return s.st.nextID
}

// WithinTx runs fn atomically.  A nested call joins the outer one.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snap := s.st.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.st = snap
		s.mu.Unlock()
		return err
	}
	return nil
}

// Seeding helpers.

// AddPlan inserts a plan and returns it with its ID set.
func (s *Store) AddPlan(p model.Plan) model.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.st.plans[p.ID] = p
	return p
}

// AddStudent inserts a student and returns it with its ID set.
func (s *Store) AddStudent(st model.Student) model.Student {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == 0 {
		st.ID = s.id()
	}
	if st.Status == "" {
		st.Status = model.StudentInactive
	}
	s.st.students[st.ID] = st
	return st
}

// Students returns every student of a trainer ordered by ID.
func (s *Store) Students(trainerID uint64) []model.Student {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Student
	for _, st := range s.st.students {
		if st.TrainerID == trainerID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tokens returns every token of a trainer ordered by ID.
func (s *Store) Tokens(trainerID uint64) []model.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Token
	for _, t := range s.st.tokens {
		if t.TrainerID == trainerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Plans.

func (s *Store) GetPlan(ctx context.Context, id uint64) (*model.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.plans[id]
	if !ok {
		return nil, repository.ErrPlanNotFound
	}
	return &p, nil
}

func (s *Store) ListActivePlans(ctx context.Context) ([]model.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Plan{}
	for _, p := range s.st.plans {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SeatLimit != out[j].SeatLimit {
			return out[i].SeatLimit < out[j].SeatLimit
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Subscriptions.

func (s *Store) GetActiveSubscription(ctx context.Context, trainerID uint64) (*model.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *model.Subscription
	for _, sub := range s.st.subs {
		if sub.TrainerID != trainerID || !sub.Active {
			continue
		}
		if best == nil || sub.StartsAt.After(best.StartsAt) ||
			(sub.StartsAt.Equal(best.StartsAt) && sub.ID > best.ID) {
			cp := sub
			best = &cp
		}
	}
	return best, nil
}

func (s *Store) ReplaceSubscription(ctx context.Context, sub *model.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, old := range s.st.subs {
		if old.TrainerID == sub.TrainerID && old.Active {
			old.Active = false
			s.st.subs[id] = old
		}
	}
	sub.ID = s.id()
	sub.Active = true
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = s.now()
	}
	s.st.subs[sub.ID] = *sub
	id := sub.ID
	s.st.trainers[sub.TrainerID] = model.Trainer{ID: sub.TrainerID, CurrentSubscriptionID: &id}
	return nil
}

// LockTrainer is satisfied by WithinTx, which already runs one
// transaction at a time.
func (s *Store) LockTrainer(ctx context.Context, trainerID uint64) error {
	return nil
}

// Students.

func (s *Store) GetStudent(ctx context.Context, id uint64) (*model.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.st.students[id]
	if !ok {
		return nil, repository.ErrStudentNotFound
	}
	return &st, nil
}

func (s *Store) SetStudentStatus(ctx context.Context, id uint64, status model.StudentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.st.students[id]
	if !ok {
		return repository.ErrStudentNotFound
	}
	st.Status = status
	s.st.students[id] = st
	return nil
}

func (s *Store) ListActiveStudents(ctx context.Context, trainerID uint64) ([]model.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Student{}
	for _, st := range s.st.students {
		if st.TrainerID == trainerID && st.IsActive() {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Tokens.

func (s *Store) CreateToken(ctx context.Context, t *model.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	now := s.now()
	t.CreatedAt, t.UpdatedAt = now, now
	s.st.tokens[t.ID] = *t
	return nil
}

func (s *Store) GetToken(ctx context.Context, id uint64) (*model.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.st.tokens[id]
	if !ok {
		return nil, repository.ErrTokenNotFound
	}
	return &t, nil
}

func (s *Store) filterTokens(keep func(model.Token) bool) []model.Token {
	out := []model.Token{}
	for _, t := range s.st.tokens {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func newestFirst(toks []model.Token) {
	sort.Slice(toks, func(i, j int) bool {
		var a, b time.Time
		if toks[i].AssignedAt != nil {
			a = *toks[i].AssignedAt
		}
		if toks[j].AssignedAt != nil {
			b = *toks[j].AssignedAt
		}
		if !a.Equal(b) {
			return a.After(b)
		}
		return toks[i].ID > toks[j].ID
	})
}

func (s *Store) ListAssignable(ctx context.Context, trainerID uint64, now time.Time) ([]model.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterTokens(func(t model.Token) bool {
		return t.TrainerID == trainerID && t.AssignableAt(now)
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListAssigned(ctx context.Context, trainerID uint64) ([]model.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterTokens(func(t model.Token) bool {
		return t.TrainerID == trainerID && t.Active && t.Assigned()
	})
	newestFirst(out)
	return out, nil
}

func (s *Store) FindAssigned(ctx context.Context, trainerID, studentID uint64) ([]model.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.filterTokens(func(t model.Token) bool {
		return t.TrainerID == trainerID && t.Active && t.StudentID != nil && *t.StudentID == studentID
	})
	newestFirst(out)
	return out, nil
}

func (s *Store) ClaimToken(ctx context.Context, tokenID, studentID uint64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.st.tokens[tokenID]
	if !ok || !t.AssignableAt(at) {
		return false, nil
	}
	sid, ts := studentID, at
	t.StudentID = &sid
	t.AssignedAt = &ts
	t.UpdatedAt = s.now()
	s.st.tokens[tokenID] = t
	return true, nil
}

func (s *Store) DecrementToken(ctx context.Context, tokenID uint64, by int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.st.tokens[tokenID]
	if !ok || !t.Active || t.Assigned() || t.Quantity <= by {
		return false, nil
	}
	t.Quantity -= by
	t.UpdatedAt = s.now()
	s.st.tokens[tokenID] = t
	return true, nil
}

func (s *Store) ReleaseToken(ctx context.Context, tokenID uint64) error {
	return s.updateToken(tokenID, func(t *model.Token) {
		t.StudentID = nil
		t.AssignedAt = nil
	})
}

func (s *Store) RetireToken(ctx context.Context, tokenID uint64) error {
	return s.updateToken(tokenID, func(t *model.Token) { t.Active = false })
}

func (s *Store) updateToken(tokenID uint64, fn func(*model.Token)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.st.tokens[tokenID]
	if !ok {
		return repository.ErrTokenNotFound
	}
	fn(&t)
	t.UpdatedAt = s.now()
	s.st.tokens[tokenID] = t
	return nil
}

func (s *Store) RetireSubscriptionTokens(ctx context.Context, subscriptionID uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.st.tokens {
		if t.Active && t.SubscriptionID != nil && *t.SubscriptionID == subscriptionID {
			t.Active = false
			t.UpdatedAt = s.now()
			s.st.tokens[id] = t
			n++
		}
	}
	return n, nil
}

// History.

func (s *Store) AppendDeactivation(ctx context.Context, rec *model.DeactivationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.id()
	s.st.history = append(s.st.history, *rec)
	return nil
}

func (s *Store) ListDeactivationsSince(ctx context.Context, trainerID uint64, since time.Time) ([]model.DeactivationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.DeactivationRecord{}
	for _, r := range s.st.history {
		if r.TrainerID == trainerID && !r.DeactivatedAt.Before(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DeactivatedAt.Equal(out[j].DeactivatedAt) {
			return out[i].DeactivatedAt.After(out[j].DeactivatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
