package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/larexx40/gowagr-test/internal/domain"
	"github.com/larexx40/gowagr-test/internal/storage/memory"
	"github.com/shopspring/decimal"
)

// ---- fakes ----

type fakeCache struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func newFakeCache() *fakeCache {
	return &fakeCache{balances: make(map[string]decimal.Decimal)}
}

func (f *fakeCache) Set(ctx context.Context, userID string, balance decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[userID] = balance
}

func (f *fakeCache) get(userID string) (decimal.Decimal, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.balances[userID]
	return b, ok
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) Publish(ctx context.Context, stream, eventType string, data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

// failingStore makes transaction-row inserts inside a unit of work blow up,
// simulating a crash after the balance write but before commit.
type failingStore struct {
	*memory.Store
	failCreate bool
}

func (f *failingStore) CreateTransaction(ctx context.Context, txn *domain.Transaction) error {
	if f.failCreate {
		return fmt.Errorf("simulated crash")
	}
	return f.Store.CreateTransaction(ctx, txn)
}

// ---- helpers ----

func seedUser(t *testing.T, store *memory.Store, username string, balance string) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:         uuid.NewString(),
		Email:      username + "@example.com",
		Firstname:  "Test",
		Lastname:   "User",
		Username:   username,
		Balance:    mustDecimal(t, balance),
		IsVerified: true,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user %s: %v", username, err)
	}
	return user
}

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func balanceOf(t *testing.T, store *memory.Store, userID string) decimal.Decimal {
	t.Helper()
	user, err := store.FindUserByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to read user %s: %v", userID, err)
	}
	return user.Balance
}

func listAll(t *testing.T, store *memory.Store, userID string, status domain.TransactionStatus) []domain.Transaction {
	t.Helper()
	txns, _, err := store.ListTransactionsByUser(context.Background(), userID, domain.TransactionFilter{
		Status: status,
		Limit:  100,
	})
	if err != nil {
		t.Fatalf("failed to list transactions: %v", err)
	}
	return txns
}

func newTestEngine(store Store, directory Directory) (*Engine, *fakeCache, *fakePublisher) {
	cache := newFakeCache()
	publisher := &fakePublisher{}
	return NewEngine(store, directory, cache, publisher), cache, publisher
}

// ---- deposit ----

func TestDeposit(t *testing.T) {
	store := memory.NewStore()
	user := seedUser(t, store, "johndoe", "100")
	engine, cache, _ := newTestEngine(store, store)

	txn, err := engine.Deposit(context.Background(), user.ID, mustDecimal(t, "50"))
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	engine.Flush()

	if txn.Type != domain.TypeDeposit || txn.Status != domain.StatusSuccess {
		t.Errorf("expected SUCCESS DEPOSIT, got %s %s", txn.Type, txn.Status)
	}
	if txn.RecipientID != "" {
		t.Errorf("deposit must not have a recipient, got %q", txn.RecipientID)
	}
	if got := balanceOf(t, store, user.ID); !got.Equal(mustDecimal(t, "150.00")) {
		t.Errorf("expected balance 150.00, got %s", got)
	}
	if rows := listAll(t, store, user.ID, ""); len(rows) != 1 {
		t.Errorf("expected 1 transaction row, got %d", len(rows))
	}
	if cached, ok := cache.get(user.ID); !ok || !cached.Equal(mustDecimal(t, "150.00")) {
		t.Errorf("expected cached balance 150.00, got %v (ok=%v)", cached, ok)
	}
}

func TestDepositUnknownAccount(t *testing.T) {
	store := memory.NewStore()
	engine, _, _ := newTestEngine(store, store)

	unknown := uuid.NewString()
	_, err := engine.Deposit(context.Background(), unknown, mustDecimal(t, "50"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if rows := listAll(t, store, unknown, ""); len(rows) != 0 {
		t.Errorf("no rows expected for an unknown account, got %d", len(rows))
	}
}

func TestDepositInvalidAmount(t *testing.T) {
	store := memory.NewStore()
	user := seedUser(t, store, "johndoe", "100")
	engine, _, _ := newTestEngine(store, store)

	for _, amount := range []string{"0", "-10", "1.999"} {
		_, err := engine.Deposit(context.Background(), user.ID, mustDecimal(t, amount))
		if !errors.Is(err, domain.ErrInvalidOperation) {
			t.Errorf("amount %s: expected ErrInvalidOperation, got %v", amount, err)
		}
	}
	if got := balanceOf(t, store, user.ID); !got.Equal(mustDecimal(t, "100")) {
		t.Errorf("balance must be unchanged, got %s", got)
	}
}

// ---- transfer ----

func TestTransfer(t *testing.T) {
	store := memory.NewStore()
	sender := seedUser(t, store, "sender", "400")
	recipient := seedUser(t, store, "recipient", "200")
	engine, cache, _ := newTestEngine(store, store)

	txn, err := engine.Transfer(context.Background(), sender.ID, "recipient", mustDecimal(t, "100"))
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	engine.Flush()

	if txn.Type != domain.TypeTransfer || txn.Status != domain.StatusSuccess {
		t.Errorf("expected SUCCESS TRANSFER, got %s %s", txn.Type, txn.Status)
	}
	if txn.InitiatorID != sender.ID || txn.RecipientID != recipient.ID {
		t.Errorf("wrong participants: %s -> %s", txn.InitiatorID, txn.RecipientID)
	}
	if !txn.Amount.Equal(mustDecimal(t, "100")) {
		t.Errorf("expected amount 100, got %s", txn.Amount)
	}

	senderBalance := balanceOf(t, store, sender.ID)
	recipientBalance := balanceOf(t, store, recipient.ID)
	if !senderBalance.Equal(mustDecimal(t, "300")) {
		t.Errorf("expected sender balance 300, got %s", senderBalance)
	}
	if !recipientBalance.Equal(mustDecimal(t, "300")) {
		t.Errorf("expected recipient balance 300, got %s", recipientBalance)
	}

	// Conservation: total money is unchanged.
	if total := senderBalance.Add(recipientBalance); !total.Equal(mustDecimal(t, "600")) {
		t.Errorf("money not conserved: total %s", total)
	}

	for _, id := range []string{sender.ID, recipient.ID} {
		if cached, ok := cache.get(id); !ok {
			t.Errorf("expected cache refresh for %s", id)
		} else if expected := balanceOf(t, store, id); !cached.Equal(expected) {
			t.Errorf("cache for %s holds %s, want %s", id, cached, expected)
		}
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	store := memory.NewStore()
	sender := seedUser(t, store, "sender", "400")
	recipient := seedUser(t, store, "recipient", "200")
	engine, cache, _ := newTestEngine(store, store)

	_, err := engine.Transfer(context.Background(), sender.ID, "recipient", mustDecimal(t, "10000"))
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	engine.Flush()

	if got := balanceOf(t, store, sender.ID); !got.Equal(mustDecimal(t, "400")) {
		t.Errorf("sender balance must be unchanged, got %s", got)
	}
	if got := balanceOf(t, store, recipient.ID); !got.Equal(mustDecimal(t, "200")) {
		t.Errorf("recipient balance must be unchanged, got %s", got)
	}
	if _, ok := cache.get(sender.ID); ok {
		t.Error("cache must not be refreshed on a rejected transfer")
	}
	if rows := listAll(t, store, sender.ID, domain.StatusSuccess); len(rows) != 0 {
		t.Errorf("no SUCCESS rows expected, got %d", len(rows))
	}
	// Rejection leaves a FAILED audit row.
	if rows := listAll(t, store, sender.ID, domain.StatusFailed); len(rows) != 1 {
		t.Errorf("expected 1 FAILED audit row, got %d", len(rows))
	}
}

func TestTransferToSelf(t *testing.T) {
	store := memory.NewStore()
	sender := seedUser(t, store, "sender", "400")
	engine, _, _ := newTestEngine(store, store)

	_, err := engine.Transfer(context.Background(), sender.ID, "sender", mustDecimal(t, "10"))
	if !errors.Is(err, domain.ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
}

func TestTransferUnknownParticipants(t *testing.T) {
	store := memory.NewStore()
	sender := seedUser(t, store, "sender", "400")
	engine, _, _ := newTestEngine(store, store)

	if _, err := engine.Transfer(context.Background(), uuid.NewString(), "sender", mustDecimal(t, "10")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown sender: expected ErrNotFound, got %v", err)
	}
	if _, err := engine.Transfer(context.Background(), sender.ID, "ghost", mustDecimal(t, "10")); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown recipient: expected ErrNotFound, got %v", err)
	}
}

// ---- atomicity ----

func TestDepositRollsBackOnFailure(t *testing.T) {
	base := memory.NewStore()
	user := seedUser(t, base, "johndoe", "100")
	store := &failingStore{Store: base, failCreate: true}
	engine, cache, _ := newTestEngine(store, base)

	_, err := engine.Deposit(context.Background(), user.ID, mustDecimal(t, "50"))
	if err == nil {
		t.Fatal("expected deposit to fail")
	}
	if got := balanceOf(t, base, user.ID); !got.Equal(mustDecimal(t, "100")) {
		t.Errorf("balance must roll back to 100, got %s", got)
	}
	if rows := listAll(t, base, user.ID, ""); len(rows) != 0 {
		t.Errorf("no transaction rows expected after rollback, got %d", len(rows))
	}
	if _, ok := cache.get(user.ID); ok {
		t.Error("cache must not be refreshed after a rollback")
	}
}

func TestTransferRollsBackOnFailure(t *testing.T) {
	base := memory.NewStore()
	sender := seedUser(t, base, "sender", "400")
	recipient := seedUser(t, base, "recipient", "200")
	store := &failingStore{Store: base, failCreate: true}
	engine, _, _ := newTestEngine(store, base)

	_, err := engine.Transfer(context.Background(), sender.ID, "recipient", mustDecimal(t, "100"))
	if err == nil {
		t.Fatal("expected transfer to fail")
	}
	if got := balanceOf(t, base, sender.ID); !got.Equal(mustDecimal(t, "400")) {
		t.Errorf("sender balance must roll back, got %s", got)
	}
	if got := balanceOf(t, base, recipient.ID); !got.Equal(mustDecimal(t, "200")) {
		t.Errorf("recipient balance must roll back, got %s", got)
	}
}

// ---- concurrency ----

func TestConcurrentDepositsLoseNoUpdates(t *testing.T) {
	store := memory.NewStore()
	user := seedUser(t, store, "johndoe", "10")
	engine, _, _ := newTestEngine(store, store)

	const n = 50
	amount := mustDecimal(t, "7.13")

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := engine.Deposit(context.Background(), user.ID, amount); err != nil {
				t.Errorf("concurrent deposit failed: %v", err)
			}
		}()
	}
	wg.Wait()
	engine.Flush()

	expected := mustDecimal(t, "10").Add(amount.Mul(decimal.NewFromInt(n)))
	if got := balanceOf(t, store, user.ID); !got.Equal(expected) {
		t.Errorf("expected balance %s, got %s", expected, got)
	}
	if rows := listAll(t, store, user.ID, ""); len(rows) != n {
		t.Errorf("expected %d transaction rows, got %d", n, len(rows))
	}
}

func TestConcurrentOppositeTransfersDoNotDeadlock(t *testing.T) {
	store := memory.NewStore()
	alice := seedUser(t, store, "alice", "1000")
	bob := seedUser(t, store, "bob", "1000")
	engine, _, _ := newTestEngine(store, store)

	const rounds = 20
	amount := mustDecimal(t, "5")

	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := engine.Transfer(context.Background(), alice.ID, "bob", amount); err != nil {
				t.Errorf("alice -> bob transfer failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := engine.Transfer(context.Background(), bob.ID, "alice", amount); err != nil {
				t.Errorf("bob -> alice transfer failed: %v", err)
			}
		}()
	}
	wg.Wait()
	engine.Flush()

	total := balanceOf(t, store, alice.ID).Add(balanceOf(t, store, bob.ID))
	if !total.Equal(mustDecimal(t, "2000")) {
		t.Errorf("money not conserved under concurrency: total %s", total)
	}
}
