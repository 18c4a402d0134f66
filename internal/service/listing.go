package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sahaana/coopvault/backend/internal/domain"
	"github.com/sahaana/coopvault/backend/internal/ledger"
)

const (
	pendingQueueLimit = 200
	userHistoryLimit  = 500
)

// ListingStore is the storage contract required by the listing service.
type ListingStore interface {
	ListTransactions(ctx context.Context, opts ledger.ListOptions) ([]domain.Transaction, error)
	FindUserByID(ctx context.Context, id string) (domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
}

// ListingService serves the admin transaction queues.
type ListingService struct {
	store ListingStore
}

// NewListingService constructs the service.
func NewListingService(store ListingStore) *ListingService {
	return &ListingService{store: store}
}

// PendingQueue returns transactions awaiting review, newest first. An empty
// status filter defaults to Pending.
func (s *ListingService) PendingQueue(ctx context.Context, status string) ([]domain.Transaction, error) {
	status = strings.TrimSpace(status)
	if status == "" {
		status = domain.StatusPending
	}
	return s.store.ListTransactions(ctx, ledger.ListOptions{
		Status: status,
		Limit:  pendingQueueLimit,
	})
}

// UserTransactions resolves a user by email first, falling back to id, and
// returns their transactions newest first. An unknown user yields an empty
// slice rather than an error, which keeps the admin view simple.
func (s *ListingService) UserTransactions(ctx context.Context, email, userID string) ([]domain.Transaction, error) {
	user, ok, err := s.resolveUser(ctx, email, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.Transaction{}, nil
	}
	return s.store.ListTransactions(ctx, ledger.ListOptions{
		UserID: user.ID,
		Limit:  userHistoryLimit,
	})
}

func (s *ListingService) resolveUser(ctx context.Context, email, userID string) (domain.User, bool, error) {
	if email != "" {
		user, err := s.store.FindUserByEmail(ctx, normalizeEmail(email))
		if err == nil {
			return user, true, nil
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return domain.User{}, false, err
		}
	}
	if userID != "" {
		user, err := s.store.FindUserByID(ctx, userID)
		if err == nil {
			return user, true, nil
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return domain.User{}, false, err
		}
	}
	return domain.User{}, false, nil
}

// normalizeEmail lowercases and trims the provided email.
func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
