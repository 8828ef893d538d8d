package allocation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/trainer-seat-allocation/internal/model"
)

func grant(t *testing.T, f *fixture, qty int, validFor time.Duration) *model.Token {
	t.Helper()
	tok, err := f.svc.GrantTokens(f.ctx, GrantRequest{
		TrainerID: trainerID, Quantity: qty, ValidFor: validFor, GrantedBy: "ops", Reason: "promo",
	})
	require.NoError(t, err)
	return tok
}

func totalUnits(toks []model.Token) int {
	n := 0
	for _, t := range toks {
		if t.Active {
			n += t.Quantity
		}
	}
	return n
}

func TestLedger_SplitConservesUnits(t *testing.T) {
	f := newFixture(t)
	parent := grant(t, f, 5, 30*24*time.Hour)
	st := f.students(1)[0]

	tok, err := f.svc.Ledger.Assign(f.ctx, trainerID, st.ID, 1)
	require.NoError(t, err)

	assert.NotEqual(t, parent.ID, tok.ID)
	assert.Equal(t, 1, tok.Quantity)
	assert.Equal(t, model.TokenKindStandalone, tok.Kind)
	assert.Equal(t, parent.ExpiresAt, tok.ExpiresAt)
	assert.Equal(t, parent.Provenance, tok.Provenance)
	require.NotNil(t, tok.StudentID)
	assert.Equal(t, st.ID, *tok.StudentID)

	toks := f.store.Tokens(trainerID)
	require.Len(t, toks, 2)
	assert.Equal(t, 4, toks[0].Quantity)
	assert.False(t, toks[0].Assigned())
	assert.Equal(t, 5, totalUnits(toks))

	avail, err := f.svc.Ledger.AvailableQuantity(f.ctx, trainerID, "")
	require.NoError(t, err)
	assert.Equal(t, 4, avail)
}

func TestLedger_ExactQuantityClaimsWholeToken(t *testing.T) {
	f := newFixture(t)
	soon := grant(t, f, 2, 5*24*time.Hour)
	grant(t, f, 2, 20*24*time.Hour)
	st := f.students(1)[0]

	tok, err := f.svc.Ledger.Assign(f.ctx, trainerID, st.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, soon.ID, tok.ID, "earliest expiry is spent first")
	assert.Len(t, f.store.Tokens(trainerID), 2)
}

func TestLedger_AssignFailures(t *testing.T) {
	f := newFixture(t)
	grant(t, f, 2, 5*24*time.Hour)
	grant(t, f, 2, 20*24*time.Hour)
	st := f.students(1)[0]

	_, err := f.svc.Ledger.Assign(f.ctx, trainerID, st.ID, 5)
	assert.ErrorIs(t, err, ErrInsufficientResources)

	_, err = f.svc.Ledger.Assign(f.ctx, trainerID, st.ID, 3)
	assert.ErrorIs(t, err, ErrNoSuitableToken)
	assert.Equal(t, CodeNoSuitableToken, CodeOf(err))

	_, err = f.svc.Ledger.Assign(f.ctx, trainerID, st.ID, 0)
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))

	assert.Equal(t, 4, totalUnits(f.store.Tokens(trainerID)), "failed assignments leave the ledger untouched")
}

func TestLedger_ExpiredTokensAreNotCapacity(t *testing.T) {
	f := newFixture(t)
	grant(t, f, 3, 24*time.Hour)
	f.advance(24 * time.Hour)

	avail, err := f.svc.Ledger.AvailableQuantity(f.ctx, trainerID, "")
	require.NoError(t, err)
	assert.Zero(t, avail)
}

func TestLedger_ReleaseReturnsStandaloneUnits(t *testing.T) {
	f := newFixture(t)
	grant(t, f, 1, 10*24*time.Hour)
	st := f.students(1)[0]
	f.activate(st)

	rec, err := f.svc.DeactivateStudent(f.ctx, trainerID, st.ID, model.ReasonManual)
	require.NoError(t, err)
	require.NotNil(t, rec.TokenID)
	assert.False(t, rec.CanBeReactivated)

	avail, err := f.svc.Ledger.AvailableQuantity(f.ctx, trainerID, model.TokenKindStandalone)
	require.NoError(t, err)
	assert.Equal(t, 1, avail)
}

func TestLedger_GrantValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.GrantTokens(f.ctx, GrantRequest{TrainerID: trainerID, Quantity: 0, ValidFor: time.Hour})
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
	_, err = f.svc.GrantTokens(f.ctx, GrantRequest{TrainerID: trainerID, Quantity: 1})
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))

	tok := grant(t, f, 1, time.Hour)
	assert.NotEmpty(t, tok.Provenance.Reference)
	assert.Equal(t, "ops", tok.Provenance.GrantedBy)
}

func TestLedger_GrantReferenceLength(t *testing.T) {
	f := newFixture(t)
	req := GrantRequest{TrainerID: trainerID, Quantity: 1, ValidFor: time.Hour}

	req.Reference = "INV-" + strings.Repeat("9", 96)
	tok, err := f.svc.GrantTokens(f.ctx, req)
	require.NoError(t, err)
	assert.Len(t, tok.Provenance.Reference, 100)

	req.Reference += "9"
	_, err = f.svc.GrantTokens(f.ctx, req)
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
	assert.ErrorContains(t, err, "reference is 101 characters")

	req.Reference = ""
	req.Reason = strings.Repeat("é", 256)
	_, err = f.svc.GrantTokens(f.ctx, req)
	assert.Equal(t, CodeInvalidRequest, CodeOf(err))
	assert.Len(t, f.store.Tokens(trainerID), 1)
}
