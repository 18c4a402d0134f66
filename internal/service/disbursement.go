package service

import (
	"time"

	"github.com/sahaana/coopvault/backend/internal/domain"
)

const disbursementDescription = "Loan disbursement"

// GenerateDisbursement derives the payout deposit for an approved loan. Pure
// construction: no I/O, and the external id is stable per loan, so repeated
// derivation yields the same reference.
func GenerateDisbursement(loan domain.Transaction, now time.Time) domain.Transaction {
	currency := loan.Currency
	if currency == "" {
		currency = "USD"
	}

	return domain.Transaction{
		ExternalID:    DisbursementExternalID(loan),
		Type:          domain.TypeDeposit,
		Amount:        loan.LoanAmount,
		Currency:      currency,
		Status:        domain.StatusCompleted,
		Timestamp:     now,
		UserID:        loan.UserID,
		UserName:      loan.UserName,
		UserEmail:     loan.UserEmail,
		Description:   disbursementDescription,
		CollateralBTC: 0,
		LoanAmount:    0,
	}
}

// DisbursementExternalID returns the external id of a loan's payout deposit:
// the loan reference suffixed with the disbursement marker.
func DisbursementExternalID(loan domain.Transaction) string {
	return loan.Ref() + domain.DisbursementSuffix
}
