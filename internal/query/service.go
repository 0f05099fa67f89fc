// Package query serves paginated, filtered reads over the transaction
// history. It never touches the balance write path.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/larexx40/gowagr-test/internal/domain"
)

const (
	defaultPage  = 1
	defaultLimit = 10
)

// TransactionStore is the read contract against the ledger store.
type TransactionStore interface {
	ListTransactionsByUser(ctx context.Context, userID string, f domain.TransactionFilter) ([]domain.Transaction, int, error)
}

// ListParams carries the caller-facing pagination and filter knobs. Zero
// values fall back to defaults (page 1, 10 per page, no filters).
type ListParams struct {
	Page      int
	Limit     int
	Type      domain.TransactionType
	Status    domain.TransactionStatus
	StartDate *time.Time
	EndDate   *time.Time
}

type Service struct {
	store TransactionStore
}

func NewService(store TransactionStore) *Service {
	return &Service{store: store}
}

// List returns one page of the user's transactions, matching the user as
// either initiator or recipient, newest first. An empty page is a normal
// result, not an error: totalCount says whether anything matched at all.
func (s *Service) List(ctx context.Context, userID string, p ListParams) (*domain.TransactionPage, error) {
	page := p.Page
	if page < 1 {
		page = defaultPage
	}
	limit := p.Limit
	if limit < 1 {
		limit = defaultLimit
	}

	filter := domain.TransactionFilter{
		Type:      p.Type,
		Status:    p.Status,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	}

	items, total, err := s.store.ListTransactionsByUser(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	if items == nil {
		items = []domain.Transaction{}
	}

	return &domain.TransactionPage{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PerPage:    limit,
	}, nil
}

// ListTransfers is the transfer-history view: the same query pinned to
// type TRANSFER.
func (s *Service) ListTransfers(ctx context.Context, userID string, p ListParams) (*domain.TransactionPage, error) {
	p.Type = domain.TypeTransfer
	return s.List(ctx, userID, p)
}
