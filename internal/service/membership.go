package service

import (
	"strings"
	"time"

	"github.com/sahaana/coopvault/backend/internal/domain"
)

// Deposits at or above this amount with a membership description qualify.
const membershipMinimumDeposit = 1000

// MembershipFields carries the membership window derived from a qualifying
// transaction. The window always spans exactly one year from PaidAt.
type MembershipFields struct {
	PaidAmount float64
	PaidAt     time.Time
	ExpiresAt  time.Time
}

// EvaluateMembership decides whether an approved transaction activates or
// renews the owner's membership. A qualifying transaction is either an
// explicit membership payment or a large deposit whose description mentions
// membership; in both cases the transaction must be in a completed status.
func EvaluateMembership(tx domain.Transaction, now time.Time) (bool, MembershipFields) {
	switch strings.ToLower(tx.Status) {
	case "completed", "confirmed", "complete":
	default:
		return false, MembershipFields{}
	}

	typ := strings.ToLower(tx.Type)
	qualifies := typ == domain.TypeMembership ||
		(typ == domain.TypeDeposit &&
			tx.Amount >= membershipMinimumDeposit &&
			strings.Contains(strings.ToLower(tx.Description), domain.TypeMembership))
	if !qualifies {
		return false, MembershipFields{}
	}

	paidAt := tx.Timestamp
	if paidAt.IsZero() {
		paidAt = now
	}
	return true, MembershipFields{
		PaidAmount: tx.Amount,
		PaidAt:     paidAt,
		ExpiresAt:  paidAt.AddDate(1, 0, 0),
	}
}
