package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sahaana/coopvault/backend/internal/domain"
	"github.com/sahaana/coopvault/backend/internal/ledger"
	"github.com/sahaana/coopvault/backend/internal/mail"
	"github.com/sahaana/coopvault/backend/internal/notify"
)

type recordedEvent struct {
	userID  string
	event   string
	payload any
	admin   bool
}

type stubNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (s *stubNotifier) NotifyUser(userID, event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{userID: userID, event: event, payload: payload})
}

func (s *stubNotifier) NotifyAdmins(event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, recordedEvent{event: event, payload: payload, admin: true})
}

func (s *stubNotifier) count(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, e := range s.events {
		if e.event == event {
			n++
		}
	}
	return n
}

type stubMailQueue struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (s *stubMailQueue) Enqueue(msg mail.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(store LedgerStore, notifier Notifier, mailer MailQueue) *ApprovalService {
	svc := NewApprovalService(store, notifier, mailer, testLogger())
	svc.WithClock(func() time.Time {
		return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	})
	return svc
}

func TestApprove_StatusTransition(t *testing.T) {
	store := ledger.NewMemoryStore()
	notifier := &stubNotifier{}
	mailer := &stubMailQueue{}

	tx := store.PutTransaction(domain.Transaction{
		Type:      domain.TypeWithdrawal,
		Amount:    150,
		Currency:  "USD",
		Status:    domain.StatusPending,
		Timestamp: time.Date(2024, 5, 30, 9, 0, 0, 0, time.UTC),
	})

	svc := newTestService(store, notifier, mailer)
	result, err := svc.Approve(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if result.Transaction.Status != domain.StatusCompleted {
		t.Errorf("expected status %q, got %q", domain.StatusCompleted, result.Transaction.Status)
	}
	if len(result.SoftFailures) != 0 {
		t.Errorf("expected no soft failures, got %v", result.SoftFailures)
	}

	stored, err := store.FindTransactionByID(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("FindTransactionByID: %v", err)
	}
	if stored.Status != domain.StatusCompleted {
		t.Errorf("stored status = %q, want %q", stored.Status, domain.StatusCompleted)
	}
	if got := len(store.Transactions()); got != 1 {
		t.Errorf("expected 1 transaction in store, got %d", got)
	}
	// No owning user on the record, so only the admin broadcast fires.
	if notifier.count(notify.EventTransactionUpdated) != 1 {
		t.Errorf("expected 1 admin update, got %d", notifier.count(notify.EventTransactionUpdated))
	}
}

func TestApprove_ResolvesExternalID(t *testing.T) {
	store := ledger.NewMemoryStore()
	tx := store.PutTransaction(domain.Transaction{
		ExternalID: "TXN-42",
		Type:       domain.TypeDeposit,
		Amount:     20,
		Status:     domain.StatusPending,
	})

	svc := newTestService(store, &stubNotifier{}, &stubMailQueue{})
	result, err := svc.Approve(context.Background(), "TXN-42")
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if result.Transaction.ID != tx.ID {
		t.Errorf("resolved wrong transaction: got %q, want %q", result.Transaction.ID, tx.ID)
	}
}

func TestApprove_UnknownReference(t *testing.T) {
	store := ledger.NewMemoryStore()
	store.PutTransaction(domain.Transaction{ExternalID: "TXN-1", Status: domain.StatusPending})

	svc := newTestService(store, &stubNotifier{}, &stubMailQueue{})
	_, err := svc.Approve(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for _, tx := range store.Transactions() {
		if tx.Status != domain.StatusPending {
			t.Errorf("transaction %s mutated to %q", tx.Ref(), tx.Status)
		}
	}
}

func TestApprove_StatusSaveFailure(t *testing.T) {
	store := ledger.NewMemoryStore()
	tx := store.PutTransaction(domain.Transaction{
		Type:       domain.TypeLoan,
		LoanAmount: 500,
		Status:     domain.StatusPending,
		UserID:     "u1",
	})
	store.WithSaveTransactionError(errors.New("write concern failed"))

	notifier := &stubNotifier{}
	svc := newTestService(store, notifier, &stubMailQueue{})
	_, err := svc.Approve(context.Background(), tx.ID)

	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if got := len(store.Transactions()); got != 1 {
		t.Errorf("cascade ran despite fatal save: %d transactions", got)
	}
	if len(notifier.events) != 0 {
		t.Errorf("expected no notifications, got %d", len(notifier.events))
	}
}

func TestApprove_LoanDisbursement(t *testing.T) {
	store := ledger.NewMemoryStore()
	user := store.PutUser(domain.User{
		Name:              "Amina Diallo",
		Email:             "amina@example.com",
		SavingsBalanceUSD: 100,
	})
	loan := store.PutTransaction(domain.Transaction{
		ExternalID: "LOAN-1",
		Type:       domain.TypeLoan,
		LoanAmount: 500,
		Currency:   "USD",
		Status:     domain.StatusPending,
		UserID:     user.ID,
		UserName:   user.Name,
		UserEmail:  user.Email,
	})

	notifier := &stubNotifier{}
	mailer := &stubMailQueue{}
	svc := newTestService(store, notifier, mailer)

	result, err := svc.Approve(context.Background(), loan.ID)
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if len(result.SoftFailures) != 0 {
		t.Fatalf("unexpected soft failures: %v", result.SoftFailures)
	}

	deposit, err := store.FindTransactionByExternalID(context.Background(), "LOAN-1_DISB")
	if err != nil {
		t.Fatalf("disbursement not created: %v", err)
	}
	if deposit.Type != domain.TypeDeposit {
		t.Errorf("disbursement type = %q, want %q", deposit.Type, domain.TypeDeposit)
	}
	if deposit.Amount != 500 {
		t.Errorf("disbursement amount = %v, want 500", deposit.Amount)
	}
	if deposit.Status != domain.StatusCompleted {
		t.Errorf("disbursement status = %q, want %q", deposit.Status, domain.StatusCompleted)
	}
	if !deposit.AppliedToBalances {
		t.Error("disbursement not marked applied to balances")
	}
	if deposit.LoanAmount != 0 || deposit.CollateralBTC != 0 {
		t.Error("loan fields leaked into disbursement")
	}

	updated, err := store.FindUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("FindUserByID: %v", err)
	}
	if updated.SavingsBalanceUSD != 600 {
		t.Errorf("savings balance = %v, want 600", updated.SavingsBalanceUSD)
	}

	if notifier.count(notify.EventTransactionCreated) != 1 {
		t.Errorf("expected 1 created event, got %d", notifier.count(notify.EventTransactionCreated))
	}
	if len(mailer.messages) != 1 {
		t.Fatalf("expected 1 queued email, got %d", len(mailer.messages))
	}
	if mailer.messages[0].To != user.Email {
		t.Errorf("email recipient = %q, want %q", mailer.messages[0].To, user.Email)
	}
}

func TestApprove_ReApprovalCreatesSingleDisbursement(t *testing.T) {
	store := ledger.NewMemoryStore()
	user := store.PutUser(domain.User{Name: "Bilal", SavingsBalanceUSD: 0})
	loan := store.PutTransaction(domain.Transaction{
		ExternalID: "LOAN-2",
		Type:       domain.TypeLoan,
		LoanAmount: 250,
		Status:     domain.StatusPending,
		UserID:     user.ID,
	})

	svc := newTestService(store, &stubNotifier{}, &stubMailQueue{})
	for i := 0; i < 2; i++ {
		if _, err := svc.Approve(context.Background(), loan.ID); err != nil {
			t.Fatalf("Approve #%d returned error: %v", i+1, err)
		}
	}

	var disbursements int
	for _, tx := range store.Transactions() {
		if tx.ExternalID == "LOAN-2_DISB" {
			disbursements++
		}
	}
	if disbursements != 1 {
		t.Errorf("expected 1 disbursement, got %d", disbursements)
	}

	updated, _ := store.FindUserByID(context.Background(), user.ID)
	if updated.SavingsBalanceUSD != 250 {
		t.Errorf("savings balance = %v, want 250 (credited once)", updated.SavingsBalanceUSD)
	}
}

func TestApprove_LoanWithoutOwnerSkipsDisbursement(t *testing.T) {
	store := ledger.NewMemoryStore()
	loan := store.PutTransaction(domain.Transaction{
		ExternalID: "LOAN-3",
		Type:       domain.TypeLoan,
		LoanAmount: 300,
		Status:     domain.StatusPending,
	})

	svc := newTestService(store, &stubNotifier{}, &stubMailQueue{})
	result, err := svc.Approve(context.Background(), loan.ID)
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if len(result.SoftFailures) != 0 {
		t.Errorf("unexpected soft failures: %v", result.SoftFailures)
	}
	if got := len(store.Transactions()); got != 1 {
		t.Errorf("expected no disbursement, got %d transactions", got)
	}
}

func TestApprove_MembershipActivation(t *testing.T) {
	store := ledger.NewMemoryStore()
	user := store.PutUser(domain.User{Name: "Grace", Email: "grace@example.com"})
	paidAt := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	tx := store.PutTransaction(domain.Transaction{
		Type:        domain.TypeDeposit,
		Amount:      1000,
		Status:      domain.StatusPending,
		Timestamp:   paidAt,
		UserID:      user.ID,
		Description: "Annual membership fee",
	})

	svc := newTestService(store, &stubNotifier{}, &stubMailQueue{})
	if _, err := svc.Approve(context.Background(), tx.ID); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}

	updated, _ := store.FindUserByID(context.Background(), user.ID)
	if !updated.IsMember {
		t.Fatal("user not marked as member")
	}
	if updated.MembershipPaidAmount != 1000 {
		t.Errorf("paid amount = %v, want 1000", updated.MembershipPaidAmount)
	}
	if updated.MembershipPaidAt == nil || !updated.MembershipPaidAt.Equal(paidAt) {
		t.Errorf("paid at = %v, want %v", updated.MembershipPaidAt, paidAt)
	}
	wantExpiry := paidAt.AddDate(1, 0, 0)
	if updated.MembershipExpiresAt == nil || !updated.MembershipExpiresAt.Equal(wantExpiry) {
		t.Errorf("expires at = %v, want %v", updated.MembershipExpiresAt, wantExpiry)
	}
}

func TestApprove_DepositBelowThresholdNoMembership(t *testing.T) {
	store := ledger.NewMemoryStore()
	user := store.PutUser(domain.User{Name: "Hamid"})
	tx := store.PutTransaction(domain.Transaction{
		Type:        domain.TypeDeposit,
		Amount:      999,
		Status:      domain.StatusPending,
		UserID:      user.ID,
		Description: "membership payment",
	})

	svc := newTestService(store, &stubNotifier{}, &stubMailQueue{})
	if _, err := svc.Approve(context.Background(), tx.ID); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}

	updated, _ := store.FindUserByID(context.Background(), user.ID)
	if updated.IsMember {
		t.Error("deposit below threshold granted membership")
	}
}

func TestApprove_MembershipSaveConflictIsSoftFailure(t *testing.T) {
	store := ledger.NewMemoryStore()
	user := store.PutUser(domain.User{Name: "Ines"})
	tx := store.PutTransaction(domain.Transaction{
		Type:      domain.TypeMembership,
		Amount:    1000,
		Status:    domain.StatusPending,
		Timestamp: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		UserID:    user.ID,
	})
	store.WithSaveUserError(ledger.ErrVersionConflict)

	svc := newTestService(store, &stubNotifier{}, &stubMailQueue{})
	result, err := svc.Approve(context.Background(), tx.ID)
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}

	var found bool
	for _, failure := range result.SoftFailures {
		if failure.Stage == StageMembership && errors.Is(failure.Err, ledger.ErrVersionConflict) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected membership soft failure with version conflict, got %v", result.SoftFailures)
	}
	if result.Transaction.Status != domain.StatusCompleted {
		t.Errorf("approval status = %q, want %q", result.Transaction.Status, domain.StatusCompleted)
	}
}

func TestApprove_MailDeliveryFailureDoesNotAffectResult(t *testing.T) {
	store := ledger.NewMemoryStore()
	user := store.PutUser(domain.User{Name: "Jonas", Email: "jonas@example.com"})
	tx := store.PutTransaction(domain.Transaction{
		Type:   domain.TypeDeposit,
		Amount: 50,
		Status: domain.StatusPending,
		UserID: user.ID,
	})

	dispatcher := mail.NewDispatcher(failingSender{}, testLogger(), 1, 0)
	svc := newTestService(store, &stubNotifier{}, dispatcher)

	result, err := svc.Approve(context.Background(), tx.ID)
	dispatcher.Close()
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if len(result.SoftFailures) != 0 {
		t.Errorf("mail failure leaked into result: %v", result.SoftFailures)
	}
	if result.Transaction.Status != domain.StatusCompleted {
		t.Errorf("approval status = %q, want %q", result.Transaction.Status, domain.StatusCompleted)
	}
}

func TestApprove_MissingEmailSkipsQueue(t *testing.T) {
	store := ledger.NewMemoryStore()
	user := store.PutUser(domain.User{Name: "Dalia"})
	tx := store.PutTransaction(domain.Transaction{
		Type:   domain.TypeDeposit,
		Amount: 75,
		Status: domain.StatusPending,
		UserID: user.ID,
	})

	mailer := &stubMailQueue{}
	svc := newTestService(store, &stubNotifier{}, mailer)
	if _, err := svc.Approve(context.Background(), tx.ID); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if len(mailer.messages) != 0 {
		t.Errorf("expected no queued emails, got %d", len(mailer.messages))
	}
}

type failingSender struct{}

func (failingSender) Send(mail.Message) mail.Result {
	return mail.Result{Err: errors.New("smtp connection refused")}
}
