package domain

import "time"

// User aggregates the canonical member record. Balances are mutated only by
// server-side balance application, never from client input.
type User struct {
	ID                   string
	Name                 string
	Email                string
	SavingsBalanceUSD    float64
	CollateralBalanceUSD float64
	IsMember             bool
	MembershipPaidAmount float64
	MembershipPaidAt     *time.Time
	MembershipExpiresAt  *time.Time
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
