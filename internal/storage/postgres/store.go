package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/larexx40/gowagr-test/internal/domain"
	"github.com/lib/pq"
)

// Store is the PostgreSQL ledger store: the source of truth for users
// (accounts) and their transaction history.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// txKey is the context key under which an open *sql.Tx travels.
type txKey struct{}

// WithTransaction runs fn inside a database transaction. The transaction is
// stored in the context so that store methods called from fn join it. Any
// error from fn rolls the whole unit of work back; nothing is partially applied.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Printf("failed to rollback transaction: %v", err)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapLockErr(err))
	}
	return nil
}

// getTx returns the transaction stored in ctx, or nil outside a unit of work.
func getTx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) conn(ctx context.Context) querier {
	if tx := getTx(ctx); tx != nil {
		return tx
	}
	return s.db
}

// mapLockErr converts lock-wait and statement-timeout failures into
// ErrOperationUnavailable so callers can treat them as transient and retry.
func mapLockErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "55P03", "57014": // lock_not_available, query_canceled
			return fmt.Errorf("%w: %v", domain.ErrOperationUnavailable, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", domain.ErrOperationUnavailable, err)
	}
	return err
}
