package ledger

import (
	"context"
	"errors"

	"github.com/sahaana/coopvault/backend/internal/domain"
)

// ErrNotFound indicates the requested record does not exist. Callers must
// treat it as distinct from infrastructure failures.
var ErrNotFound = errors.New("ledger: record not found")

// ErrVersionConflict signals that a user save lost an optimistic-concurrency
// race: the stored version moved since the record was read.
var ErrVersionConflict = errors.New("ledger: user version conflict")

// ListOptions filters transaction listings. A zero Limit means no cap.
type ListOptions struct {
	Status string
	UserID string
	Limit  int64
}

// Store is the durable home of Transaction and User records. Saves overwrite
// the whole record; user saves are guarded by the record's version stamp.
type Store interface {
	FindTransactionByID(ctx context.Context, id string) (domain.Transaction, error)
	FindTransactionByExternalID(ctx context.Context, externalID string) (domain.Transaction, error)
	CreateTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
	SaveTransaction(ctx context.Context, tx domain.Transaction) error
	ListTransactions(ctx context.Context, opts ListOptions) ([]domain.Transaction, error)
	FindUserByID(ctx context.Context, id string) (domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
	CreateUser(ctx context.Context, user domain.User) (domain.User, error)
	SaveUser(ctx context.Context, user domain.User) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
