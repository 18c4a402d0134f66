package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sahaana/coopvault/backend/internal/domain"
	"github.com/sahaana/coopvault/backend/internal/ledger"
	"github.com/sahaana/coopvault/backend/internal/mail"
	"github.com/sahaana/coopvault/backend/internal/notify"
)

// Stage names reported in ApprovalResult diagnostics.
const (
	StageDisbursement = "disbursement"
	StageNotify       = "notify"
	StageMembership   = "membership"
	StageEmail        = "email"
)

// LedgerStore is the storage contract required by the approval service.
type LedgerStore interface {
	FindTransactionByID(ctx context.Context, id string) (domain.Transaction, error)
	FindTransactionByExternalID(ctx context.Context, externalID string) (domain.Transaction, error)
	CreateTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
	SaveTransaction(ctx context.Context, tx domain.Transaction) error
	FindUserByID(ctx context.Context, id string) (domain.User, error)
	SaveUser(ctx context.Context, user domain.User) error
}

// Notifier pushes realtime events to connected sessions.
type Notifier interface {
	NotifyUser(userID, event string, payload any)
	NotifyAdmins(event string, payload any)
}

// MailQueue accepts messages for background delivery.
type MailQueue interface {
	Enqueue(msg mail.Message)
}

// ApprovalResult carries the transaction as persisted by the status
// transition, plus diagnostics for every stage that failed softly afterwards.
// The snapshot does not reflect later successful stages; callers needing
// freshness must re-fetch.
type ApprovalResult struct {
	Transaction  domain.Transaction
	SoftFailures []StageFailure
}

// ApprovalService drives the transaction approval workflow: status
// transition, loan disbursement, realtime notification, membership
// evaluation, and the confirmation email. Only the reference lookup and the
// status save can fail the call; every later stage is isolated.
type ApprovalService struct {
	store    LedgerStore
	notifier Notifier
	mailer   MailQueue
	logger   *slog.Logger
	nowFn    func() time.Time
}

// NewApprovalService constructs the service.
func NewApprovalService(store LedgerStore, notifier Notifier, mailer MailQueue, logger *slog.Logger) *ApprovalService {
	return &ApprovalService{
		store:    store,
		notifier: notifier,
		mailer:   mailer,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// WithClock overrides the time provider (used primarily in tests).
func (s *ApprovalService) WithClock(nowFn func() time.Time) {
	if nowFn != nil {
		s.nowFn = nowFn
	}
}

// Approve marks the referenced transaction as completed and runs the
// downstream cascade. ref may be an internal id or an external transactionId;
// internal resolution is tried first.
func (s *ApprovalService) Approve(ctx context.Context, ref string) (ApprovalResult, error) {
	tx, err := s.resolve(ctx, ref)
	if err != nil {
		return ApprovalResult{}, err
	}

	tx.Status = domain.StatusCompleted
	if err := s.store.SaveTransaction(ctx, tx); err != nil {
		return ApprovalResult{}, &PersistenceError{Op: "save transaction " + tx.Ref(), Err: err}
	}

	result := ApprovalResult{Transaction: tx}

	s.runDisbursement(ctx, tx, &result)
	s.runNotify(tx)
	s.runMembership(ctx, tx, &result)
	s.runEmail(ctx, tx, &result)

	return result, nil
}

func (s *ApprovalService) resolve(ctx context.Context, ref string) (domain.Transaction, error) {
	if ref == "" {
		return domain.Transaction{}, ErrNotFound
	}

	tx, err := s.store.FindTransactionByID(ctx, ref)
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return domain.Transaction{}, &PersistenceError{Op: "resolve transaction " + ref, Err: err}
	}

	tx, err = s.store.FindTransactionByExternalID(ctx, ref)
	if errors.Is(err, ledger.ErrNotFound) {
		return domain.Transaction{}, ErrNotFound
	}
	if err != nil {
		return domain.Transaction{}, &PersistenceError{Op: "resolve transaction " + ref, Err: err}
	}
	return tx, nil
}

// runDisbursement creates the payout deposit for an approved loan and credits
// the owner's savings balance. The derived external id doubles as an
// idempotency key: a re-approval finds the existing disbursement and skips
// the cascade instead of crediting twice.
func (s *ApprovalService) runDisbursement(ctx context.Context, tx domain.Transaction, result *ApprovalResult) {
	if !tx.IsLoan() || tx.LoanAmount <= 0 || tx.UserID == "" {
		return
	}

	derivedID := DisbursementExternalID(tx)
	_, err := s.store.FindTransactionByExternalID(ctx, derivedID)
	if err == nil {
		s.logger.Info("disbursement already exists, skipping",
			"transactionId", tx.Ref(), "disbursementId", derivedID)
		return
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		s.soft(result, StageDisbursement, fmt.Errorf("check existing disbursement: %w", err))
		return
	}

	deposit, err := s.store.CreateTransaction(ctx, GenerateDisbursement(tx, s.nowFn()))
	if err != nil {
		s.soft(result, StageDisbursement, fmt.Errorf("create disbursement: %w", err))
		return
	}

	if err := s.applyDisbursement(ctx, &deposit); err != nil {
		s.soft(result, StageDisbursement, err)
	}

	s.notifier.NotifyUser(tx.UserID, notify.EventTransactionCreated, deposit)
}

func (s *ApprovalService) applyDisbursement(ctx context.Context, deposit *domain.Transaction) error {
	user, err := s.store.FindUserByID(ctx, deposit.UserID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", deposit.UserID, err)
	}

	user.SavingsBalanceUSD += deposit.Amount
	if err := s.store.SaveUser(ctx, user); err != nil {
		return fmt.Errorf("credit savings balance: %w", err)
	}

	deposit.AppliedToBalances = true
	if err := s.store.SaveTransaction(ctx, *deposit); err != nil {
		return fmt.Errorf("mark disbursement applied: %w", err)
	}

	s.notifier.NotifyUser(user.ID, notify.EventUserUpdated, map[string]any{
		"id":                   user.ID,
		"savingsBalanceUSD":    user.SavingsBalanceUSD,
		"collateralBalanceUSD": user.CollateralBalanceUSD,
	})
	return nil
}

func (s *ApprovalService) runNotify(tx domain.Transaction) {
	if tx.UserID != "" {
		s.notifier.NotifyUser(tx.UserID, notify.EventTransactionUpdated, tx)
	}
	s.notifier.NotifyAdmins(notify.EventTransactionUpdated, tx)
}

func (s *ApprovalService) runMembership(ctx context.Context, tx domain.Transaction, result *ApprovalResult) {
	qualifies, fields := EvaluateMembership(tx, s.nowFn())
	if !qualifies || tx.UserID == "" {
		return
	}

	user, err := s.store.FindUserByID(ctx, tx.UserID)
	if err != nil {
		s.soft(result, StageMembership, fmt.Errorf("load user %s: %w", tx.UserID, err))
		return
	}

	user.IsMember = true
	if fields.PaidAmount > 0 {
		user.MembershipPaidAmount = fields.PaidAmount
	}
	paidAt := fields.PaidAt
	expiresAt := fields.ExpiresAt
	user.MembershipPaidAt = &paidAt
	user.MembershipExpiresAt = &expiresAt

	if err := s.store.SaveUser(ctx, user); err != nil {
		s.soft(result, StageMembership, fmt.Errorf("save membership: %w", err))
		return
	}

	s.notifier.NotifyUser(user.ID, notify.EventUserUpdated, map[string]any{
		"id":                   user.ID,
		"isMember":             user.IsMember,
		"membershipPaidAmount": user.MembershipPaidAmount,
		"membershipPaidAt":     user.MembershipPaidAt,
		"membershipExpiresAt":  user.MembershipExpiresAt,
	})
}

func (s *ApprovalService) runEmail(ctx context.Context, tx domain.Transaction, result *ApprovalResult) {
	if tx.UserID == "" || s.mailer == nil {
		return
	}

	user, err := s.store.FindUserByID(ctx, tx.UserID)
	if err != nil {
		s.soft(result, StageEmail, fmt.Errorf("load user %s: %w", tx.UserID, err))
		return
	}
	if user.Email == "" {
		return
	}

	s.mailer.Enqueue(ConfirmationEmail(user, tx, s.nowFn()))
}

func (s *ApprovalService) soft(result *ApprovalResult, stage string, err error) {
	s.logger.Warn("approval stage failed",
		"stage", stage, "transactionId", result.Transaction.Ref(), "error", err)
	result.SoftFailures = append(result.SoftFailures, StageFailure{Stage: stage, Err: err})
}
