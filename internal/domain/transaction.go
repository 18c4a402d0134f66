package domain

import (
	"strings"
	"time"
)

// Transaction statuses recognised by the approval workflow.
const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"
	StatusRejected  = "Rejected"
)

// Transaction types. Matching is case-insensitive throughout the workflow.
const (
	TypeDeposit    = "deposit"
	TypeWithdrawal = "withdrawal"
	TypeLoan       = "loan"
	TypeMembership = "membership"
)

// DisbursementSuffix marks system-generated loan payout deposits. Appending it
// to the loan's reference keeps the derived id stable across re-derivations.
const DisbursementSuffix = "_DISB"

// Transaction models a ledger transaction record.
type Transaction struct {
	ID                string
	ExternalID        string
	Type              string
	Amount            float64
	Currency          string
	Status            string
	Timestamp         time.Time
	UserID            string
	UserName          string
	UserEmail         string
	Description       string
	CollateralBTC     float64
	LoanAmount        float64
	AppliedToBalances bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Ref returns the external-facing reference when present, falling back to the
// internal id.
func (t Transaction) Ref() string {
	if t.ExternalID != "" {
		return t.ExternalID
	}
	return t.ID
}

// IsLoan reports whether the transaction is a loan.
func (t Transaction) IsLoan() bool {
	return strings.EqualFold(t.Type, TypeLoan)
}
