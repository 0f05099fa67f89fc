// Package memory provides an in-memory ledger store with the same contract as
// the PostgreSQL store: atomic all-or-nothing units of work and exclusive
// per-user locks acquired in ascending id order. It backs the service tests,
// which exercise real goroutine contention without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/larexx40/gowagr-test/internal/domain"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu           sync.RWMutex
	users        map[string]*domain.User
	transactions []*domain.Transaction

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewStore() *Store {
	return &Store{
		users: make(map[string]*domain.User),
		locks: make(map[string]*sync.Mutex),
	}
}

// memTx holds the staged writes of one unit of work. Nothing touches the
// committed state until WithTransaction applies the whole batch.
type memTx struct {
	balances     map[string]decimal.Decimal
	transactions []*domain.Transaction
	held         []string
}

type txKey struct{}

func getTx(ctx context.Context) *memTx {
	if tx, ok := ctx.Value(txKey{}).(*memTx); ok {
		return tx
	}
	return nil
}

// WithTransaction runs fn as an atomic unit of work. On error every staged
// write is discarded and all row locks are released.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx := &memTx{balances: make(map[string]decimal.Decimal)}
	defer s.releaseLocks(tx)

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for id, balance := range tx.balances {
		if user, ok := s.users[id]; ok {
			user.Balance = balance
			user.UpdatedAt = now
		}
	}
	s.transactions = append(s.transactions, tx.transactions...)
	return nil
}

func (s *Store) rowLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if _, ok := s.locks[id]; !ok {
		s.locks[id] = &sync.Mutex{}
	}
	return s.locks[id]
}

func (s *Store) releaseLocks(tx *memTx) {
	for _, id := range tx.held {
		s.rowLock(id).Unlock()
	}
	tx.held = nil
}

// LockUsers acquires exclusive locks in ascending id order, mirroring the
// deterministic lock ordering of the SQL store. Missing users are absent from
// the result but their locks are still taken, matching row-lock semantics for
// rows that vanish mid-transaction.
func (s *Store) LockUsers(ctx context.Context, ids ...string) (map[string]*domain.User, error) {
	tx := getTx(ctx)
	if tx == nil {
		return nil, fmt.Errorf("LockUsers called outside a transaction")
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	locked := make(map[string]*domain.User, len(sorted))
	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			continue
		}
		s.rowLock(id).Lock()
		tx.held = append(tx.held, id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range sorted {
		if user, ok := s.users[id]; ok {
			locked[id] = copyUser(user)
		}
	}
	return locked, nil
}

func (s *Store) UpdateBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	if tx := getTx(ctx); tx != nil {
		tx.balances[userID] = balance
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%w: user vanished mid-transaction", domain.ErrOperationUnavailable)
	}
	user.Balance = balance
	user.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CreateTransaction(ctx context.Context, txn *domain.Transaction) error {
	cp := *txn
	if tx := getTx(ctx); tx != nil {
		tx.transactions = append(tx.transactions, &cp)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, &cp)
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return fmt.Errorf("%w: email or username taken", domain.ErrConflict)
		}
	}
	s.users[user.ID] = copyUser(user)
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return fmt.Errorf("%w: user", domain.ErrNotFound)
	}
	for _, other := range s.users {
		if other.ID != user.ID && (other.Email == user.Email || other.Username == user.Username) {
			return fmt.Errorf("%w: email or username taken", domain.ErrConflict)
		}
	}
	cp := copyUser(user)
	cp.Balance = existing.Balance
	cp.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = cp
	return nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[id]; ok {
		return copyUser(user), nil
	}
	return nil, fmt.Errorf("%w: user", domain.ErrNotFound)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.Username == username {
			return copyUser(user), nil
		}
	}
	return nil, fmt.Errorf("%w: user", domain.ErrNotFound)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return copyUser(user), nil
		}
	}
	return nil, fmt.Errorf("%w: user", domain.ErrNotFound)
}

func (s *Store) FindUserByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) || user.Username == username {
			return copyUser(user), nil
		}
	}
	return nil, fmt.Errorf("%w: user", domain.ErrNotFound)
}

// ListTransactionsByUser mirrors the SQL store: initiator-or-recipient match,
// conjunctive filters, inclusive date bounds, newest first with id as the
// tiebreaker so pages stay stable across reads.
func (s *Store) ListTransactionsByUser(ctx context.Context, userID string, f domain.TransactionFilter) ([]domain.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		txn := s.transactions[i]
		if txn.InitiatorID != userID && txn.RecipientID != userID {
			continue
		}
		if f.Type != "" && txn.Type != f.Type {
			continue
		}
		if f.Status != "" && txn.Status != f.Status {
			continue
		}
		if f.StartDate != nil && txn.CreatedAt.Before(*f.StartDate) {
			continue
		}
		if f.EndDate != nil && txn.CreatedAt.After(*f.EndDate) {
			continue
		}
		cp := *txn
		cp.Initiator = s.miniProfile(txn.InitiatorID)
		cp.Recipient = s.miniProfile(txn.RecipientID)
		matched = append(matched, cp)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return matched[f.Offset:end], total, nil
}

func (s *Store) miniProfile(userID string) *domain.MiniProfile {
	if userID == "" {
		return nil
	}
	if user, ok := s.users[userID]; ok {
		return user.MiniProfile()
	}
	return nil
}

func copyUser(u *domain.User) *domain.User {
	cp := *u
	return &cp
}
