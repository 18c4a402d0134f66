package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sahaana/coopvault/backend/internal/domain"
)

// MemoryStore is an in-memory implementation of Store used for unit testing
// the approval workflow without a running MongoDB.
type MemoryStore struct {
	mu           sync.Mutex
	transactions map[string]domain.Transaction
	users        map[string]domain.User

	saveTxErr   error
	createTxErr error
	saveUserErr error
}

// NewMemoryStore instantiates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[string]domain.Transaction),
		users:        make(map[string]domain.User),
	}
}

// WithSaveTransactionError forces subsequent SaveTransaction calls to fail.
func (m *MemoryStore) WithSaveTransactionError(err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveTxErr = err
	return m
}

// WithCreateTransactionError forces subsequent CreateTransaction calls to fail.
func (m *MemoryStore) WithCreateTransactionError(err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createTxErr = err
	return m
}

// WithSaveUserError forces subsequent SaveUser calls to fail.
func (m *MemoryStore) WithSaveUserError(err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveUserErr = err
	return m
}

// PutTransaction seeds a transaction, assigning an id when absent.
func (m *MemoryStore) PutTransaction(tx domain.Transaction) domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	m.transactions[tx.ID] = tx
	return tx
}

// PutUser seeds a user, assigning an id and version when absent.
func (m *MemoryStore) PutUser(user domain.User) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Version == 0 {
		user.Version = 1
	}
	m.users[user.ID] = user
	return user
}

func (m *MemoryStore) FindTransactionByID(_ context.Context, id string) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[id]
	if !ok {
		return domain.Transaction{}, ErrNotFound
	}
	return tx, nil
}

func (m *MemoryStore) FindTransactionByExternalID(_ context.Context, externalID string) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if externalID == "" {
		return domain.Transaction{}, ErrNotFound
	}
	for _, tx := range m.transactions {
		if tx.ExternalID == externalID {
			return tx, nil
		}
	}
	return domain.Transaction{}, ErrNotFound
}

func (m *MemoryStore) CreateTransaction(_ context.Context, tx domain.Transaction) (domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createTxErr != nil {
		return domain.Transaction{}, m.createTxErr
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	m.transactions[tx.ID] = tx
	return tx, nil
}

func (m *MemoryStore) SaveTransaction(_ context.Context, tx domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveTxErr != nil {
		return m.saveTxErr
	}
	if _, ok := m.transactions[tx.ID]; !ok {
		return ErrNotFound
	}
	tx.UpdatedAt = time.Now().UTC()
	m.transactions[tx.ID] = tx
	return nil
}

func (m *MemoryStore) ListTransactions(_ context.Context, opts ListOptions) ([]domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var txs []domain.Transaction
	for _, tx := range m.transactions {
		if opts.Status != "" && tx.Status != opts.Status {
			continue
		}
		if opts.UserID != "" && tx.UserID != opts.UserID {
			continue
		}
		txs = append(txs, tx)
	}
	sort.Slice(txs, func(i, j int) bool {
		return txs[i].Timestamp.After(txs[j].Timestamp)
	})
	if opts.Limit > 0 && int64(len(txs)) > opts.Limit {
		txs = txs[:opts.Limit]
	}
	return txs, nil
}

func (m *MemoryStore) FindUserByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

func (m *MemoryStore) FindUserByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.TrimSpace(strings.ToLower(email))
	for _, user := range m.users {
		if strings.ToLower(user.Email) == email && email != "" {
			return user, nil
		}
	}
	return domain.User{}, ErrNotFound
}

func (m *MemoryStore) CreateUser(_ context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Version = 1
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[user.ID] = user
	return user, nil
}

func (m *MemoryStore) SaveUser(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveUserErr != nil {
		return m.saveUserErr
	}
	current, ok := m.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != user.Version {
		return ErrVersionConflict
	}
	user.Version++
	user.UpdatedAt = time.Now().UTC()
	m.users[user.ID] = user
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close(context.Context) error { return nil }

// Transactions returns a snapshot of all stored transactions.
func (m *MemoryStore) Transactions() []domain.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	txs := make([]domain.Transaction, 0, len(m.transactions))
	for _, tx := range m.transactions {
		txs = append(txs, tx)
	}
	return txs
}

// Users returns a snapshot of all stored users.
func (m *MemoryStore) Users() []domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]domain.User, 0, len(m.users))
	for _, user := range m.users {
		users = append(users, user)
	}
	return users
}
