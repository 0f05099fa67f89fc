// Package users serves profile and balance reads plus profile updates. It is
// the account directory's public face; it never writes balances.
package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/larexx40/gowagr-test/internal/domain"
	"github.com/shopspring/decimal"
)

type UserStore interface {
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)
	UpdateUser(ctx context.Context, user *domain.User) error
}

type BalanceCache interface {
	Get(ctx context.Context, userID string) (decimal.Decimal, bool)
	Set(ctx context.Context, userID string, balance decimal.Decimal)
}

type UpdateProfileInput struct {
	Firstname string
	Lastname  string
	Username  string
}

type Service struct {
	store UserStore
	cache BalanceCache
}

func NewService(store UserStore, cache BalanceCache) *Service {
	return &Service{store: store, cache: cache}
}

func (s *Service) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	return s.store.FindUserByID(ctx, userID)
}

// GetByUsername resolves a public mini profile for transfer recipients.
func (s *Service) GetByUsername(ctx context.Context, username string) (*domain.MiniProfile, error) {
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return user.MiniProfile(), nil
}

// GetBalance reads the balance through the cache, falling back to the ledger
// store and warming the cache on a miss. The cache is advisory only.
func (s *Service) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if balance, ok := s.cache.Get(ctx, userID); ok {
		return balance, nil
	}
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	s.cache.Set(ctx, userID, user.Balance)
	return user.Balance, nil
}

// UpdateProfile changes the user's name fields and username. A username
// already held by another user is a conflict.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*domain.User, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if in.Username != "" && in.Username != user.Username {
		existing, err := s.store.FindUserByUsername(ctx, in.Username)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if existing != nil && existing.ID != userID {
			return nil, fmt.Errorf("%w: username taken", domain.ErrConflict)
		}
		user.Username = in.Username
	}
	if in.Firstname != "" {
		user.Firstname = in.Firstname
	}
	if in.Lastname != "" {
		user.Lastname = in.Lastname
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}
