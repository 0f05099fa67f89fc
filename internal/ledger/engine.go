// Package ledger holds the transfer engine: the one owner of the balance
// write path. Deposits and transfers run as atomic units of work against the
// ledger store under exclusive row locks; the balance cache and event stream
// are refreshed after commit as best-effort side effects.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/larexx40/gowagr-test/internal/domain"
	"github.com/larexx40/gowagr-test/internal/events"
	"github.com/shopspring/decimal"
)

// Store is the ledger store contract the engine mutates through.
type Store interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	LockUsers(ctx context.Context, ids ...string) (map[string]*domain.User, error)
	UpdateBalance(ctx context.Context, userID string, balance decimal.Decimal) error
	CreateTransaction(ctx context.Context, txn *domain.Transaction) error
}

// Directory resolves transfer participants before the unit of work opens.
type Directory interface {
	FindUserByID(ctx context.Context, id string) (*domain.User, error)
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

// BalanceCache is refreshed after commit; it is never consulted for
// correctness inside a mutation.
type BalanceCache interface {
	Set(ctx context.Context, userID string, balance decimal.Decimal)
}

// Publisher emits domain events after commit.
type Publisher interface {
	Publish(ctx context.Context, stream, eventType string, data any) error
}

type Engine struct {
	store     Store
	directory Directory
	cache     BalanceCache
	publisher Publisher

	sideEffects sync.WaitGroup
}

func NewEngine(store Store, directory Directory, cache BalanceCache, publisher Publisher) *Engine {
	return &Engine{
		store:     store,
		directory: directory,
		cache:     cache,
		publisher: publisher,
	}
}

// Deposit credits amount to the user's balance and records a DEPOSIT
// transaction, all inside one locked unit of work. An unknown account is
// ErrNotFound; a row that cannot be locked or vanishes after the existence
// check surfaces as ErrOperationUnavailable.
func (e *Engine) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Transaction, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if _, err := e.directory.FindUserByID(ctx, userID); err != nil {
		return nil, fmt.Errorf("%w: account", domain.ErrNotFound)
	}

	var txn *domain.Transaction
	var newBalance decimal.Decimal

	err := e.store.WithTransaction(ctx, func(ctx context.Context) error {
		locked, err := e.store.LockUsers(ctx, userID)
		if err != nil {
			return err
		}
		user, ok := locked[userID]
		if !ok {
			return fmt.Errorf("%w: account unavailable", domain.ErrOperationUnavailable)
		}

		newBalance = domain.Round2(user.Balance.Add(amount))
		if err := e.store.UpdateBalance(ctx, userID, newBalance); err != nil {
			return err
		}

		txn = newTransaction(user, nil, amount, domain.TypeDeposit, domain.StatusSuccess)
		return e.store.CreateTransaction(ctx, txn)
	})
	if err != nil {
		return nil, err
	}

	e.afterCommit(txn, map[string]decimal.Decimal{userID: newBalance})
	return txn, nil
}

// Transfer moves amount from the sender to the recipient resolved by
// username. Both rows are locked in ascending id order inside one unit of
// work so opposite-direction transfers cannot deadlock. An insufficient
// balance rejects the transfer without mutating anything and leaves a
// best-effort FAILED audit row.
func (e *Engine) Transfer(ctx context.Context, senderID, recipientUsername string, amount decimal.Decimal) (*domain.Transaction, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	sender, err := e.directory.FindUserByID(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("%w: sender", domain.ErrNotFound)
	}
	recipient, err := e.directory.FindUserByUsername(ctx, recipientUsername)
	if err != nil {
		return nil, fmt.Errorf("%w: recipient", domain.ErrNotFound)
	}
	// Compare resolved identities, not the username strings the caller sent.
	if sender.ID == recipient.ID {
		return nil, fmt.Errorf("%w: cannot transfer to yourself", domain.ErrInvalidOperation)
	}

	var txn *domain.Transaction
	var senderBalance, recipientBalance decimal.Decimal

	err = e.store.WithTransaction(ctx, func(ctx context.Context) error {
		locked, err := e.store.LockUsers(ctx, sender.ID, recipient.ID)
		if err != nil {
			return err
		}
		lockedSender, ok := locked[sender.ID]
		if !ok {
			return fmt.Errorf("%w: sender unavailable", domain.ErrOperationUnavailable)
		}
		lockedRecipient, ok := locked[recipient.ID]
		if !ok {
			return fmt.Errorf("%w: recipient unavailable", domain.ErrOperationUnavailable)
		}

		if lockedSender.Balance.LessThan(amount) {
			return domain.ErrInsufficientFunds
		}

		senderBalance = domain.Round2(lockedSender.Balance.Sub(amount))
		recipientBalance = domain.Round2(lockedRecipient.Balance.Add(amount))

		if err := e.store.UpdateBalance(ctx, sender.ID, senderBalance); err != nil {
			return err
		}
		if err := e.store.UpdateBalance(ctx, recipient.ID, recipientBalance); err != nil {
			return err
		}

		txn = newTransaction(sender, recipient, amount, domain.TypeTransfer, domain.StatusSuccess)
		return e.store.CreateTransaction(ctx, txn)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			e.recordFailedTransfer(ctx, sender, recipient, amount)
		}
		return nil, err
	}

	e.afterCommit(txn, map[string]decimal.Decimal{
		sender.ID:    senderBalance,
		recipient.ID: recipientBalance,
	})
	return txn, nil
}

// recordFailedTransfer leaves a FAILED audit row after a rejected transfer.
// The rejection already rolled back, so this insert runs outside any unit of
// work and its failure is only logged.
func (e *Engine) recordFailedTransfer(ctx context.Context, sender, recipient *domain.User, amount decimal.Decimal) {
	txn := newTransaction(sender, recipient, amount, domain.TypeTransfer, domain.StatusFailed)
	if err := e.store.CreateTransaction(ctx, txn); err != nil {
		log.Printf("failed to record FAILED transfer audit row: %v", err)
	}
}

// afterCommit refreshes the balance cache and publishes events for every
// account touched by a committed mutation. It is fire-and-forget: the ledger
// write already committed, so nothing here may fail the operation or block
// the caller.
func (e *Engine) afterCommit(txn *domain.Transaction, balances map[string]decimal.Decimal) {
	e.sideEffects.Add(1)
	go func() {
		defer e.sideEffects.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for userID, balance := range balances {
			e.cache.Set(ctx, userID, balance)
			if err := e.publisher.Publish(ctx, events.TransactionEventsStream, events.BalanceUpdated, events.BalanceUpdatedEvent{
				UserID:     userID,
				NewBalance: balance,
			}); err != nil {
				log.Printf("failed to publish %s event: %v", events.BalanceUpdated, err)
			}
		}

		if err := e.publisher.Publish(ctx, events.TransactionEventsStream, events.TransactionCreated, events.TransactionCreatedEvent{
			TransactionID: txn.ID,
			InitiatorID:   txn.InitiatorID,
			RecipientID:   txn.RecipientID,
			Amount:        txn.Amount,
			Type:          string(txn.Type),
		}); err != nil {
			log.Printf("failed to publish %s event: %v", events.TransactionCreated, err)
		}
	}()
}

// Flush waits for pending post-commit side effects. Used in tests and on
// shutdown.
func (e *Engine) Flush() {
	e.sideEffects.Wait()
}

func newTransaction(initiator, recipient *domain.User, amount decimal.Decimal, txType domain.TransactionType, status domain.TransactionStatus) *domain.Transaction {
	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:          uuid.NewString(),
		InitiatorID: initiator.ID,
		Initiator:   initiator.MiniProfile(),
		Amount:      domain.Round2(amount),
		Type:        txType,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if recipient != nil {
		txn.RecipientID = recipient.ID
		txn.Recipient = recipient.MiniProfile()
	}
	return txn
}
