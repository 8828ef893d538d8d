package model

import (
	"fmt"
	"time"
)

// TokenKind tells which pool funded a token.
type TokenKind string

const (
	// TokenKindPlan tokens are minted for a student who occupies a
	// subscription seat.  They expire with the subscription.
	TokenKindPlan TokenKind = "plan"
	// TokenKindStandalone tokens are purchased or granted outside any
	// subscription and may carry a quantity greater than one.
	TokenKindStandalone TokenKind = "standalone"
)

// ParseTokenKind validates a stored or user supplied kind.
func ParseTokenKind(s string) (TokenKind, error) {
	switch TokenKind(s) {
	case TokenKindPlan:
		return TokenKindPlan, nil
	case TokenKindStandalone:
		return TokenKindStandalone, nil
	}
	return "", fmt.Errorf("unknown token kind %q", s)
}

// Provenance records who granted a token and why.  Split tokens inherit
// the provenance of their parent.
type Provenance struct {
	GrantedBy string `json:"granted_by"` // tokens.granted_by
	Reason    string `json:"reason"`     // tokens.grant_reason
	Reference string `json:"reference"`  // tokens.grant_ref
}

// Token is a fungible unit of student capacity.  A token with a
// StudentID is assigned; an unassigned token with Quantity N can back N
// students after being split.
//
// Fields:
//  ID             – primary key identifier.
//  Kind           – plan or standalone.
//  TrainerID      – owning trainer; tokens never move between trainers.
//  StudentID      – assigned student (nil while available).
//  SubscriptionID – subscription that minted a plan token (nil for standalone).
//  Quantity       – number of units, always positive.
//  ExpiresAt      – when the units stop counting as capacity.
//  Active         – false once retired (e.g. its subscription was superseded).
//  AssignedAt     – when StudentID was set.
//  Provenance     – grant metadata.
type Token struct {
	ID             uint64     `json:"id"`
	Kind           TokenKind  `json:"kind"`
	TrainerID      uint64     `json:"trainer_id"`
	StudentID      *uint64    `json:"student_id,omitempty"`
	SubscriptionID *uint64    `json:"subscription_id,omitempty"`
	Quantity       int        `json:"quantity"`
	ExpiresAt      time.Time  `json:"expires_at"`
	Active         bool       `json:"active"`
	AssignedAt     *time.Time `json:"assigned_at,omitempty"`
	Provenance     Provenance `json:"provenance"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Assigned reports whether the token backs a student.
func (t Token) Assigned() bool { return t.StudentID != nil }

// LiveAt reports whether the token is active and unexpired at now.
func (t Token) LiveAt(now time.Time) bool {
	return t.Active && t.ExpiresAt.After(now)
}

// AssignableAt reports whether the token can be handed to a student at now.
func (t Token) AssignableAt(now time.Time) bool {
	return t.LiveAt(now) && !t.Assigned() && t.Quantity > 0
}
