package ledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DmitryOnishchenko/accounting-notebook/internal/amount"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/interfaces"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/ledger"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/lock"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/models"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/storage/memory"
)

func newTestLockClient(t *testing.T) *lock.Client {
	t.Helper()
	c, err := lock.NewClient([]lock.Store{lock.NewMemoryStore("test")}, lock.Config{
		RetryCount:  lock.UnboundedRetries,
		RetryDelay:  2 * time.Millisecond,
		RetryJitter: 2 * time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func newTestLedger(t *testing.T, store interfaces.LedgerStore) (*ledger.Ledger, *lock.Client) {
	t.Helper()
	locks := newTestLockClient(t)
	return ledger.NewLedger(store, locks, nil, nil, nil), locks
}

type capturePublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *capturePublisher) Publish(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestAddTransactionScenario(t *testing.T) {
	store := memory.NewMemoryLedgerStore()
	svc, _ := newTestLedger(t, store)
	ctx := context.Background()

	if err := store.SetBalance(ctx, "1", amount.MustParse("150")); err != nil {
		t.Fatalf("seeding balance failed: %v", err)
	}

	// Debit increases the balance: 150 + 100 = 250.
	res, err := svc.AddTransaction(ctx, "1", models.TypeDebit, "100")
	if err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if res.Balance.String() != "250" {
		t.Errorf("balance after debit = %s, want 250", res.Balance)
	}
	if res.TransactionID == 0 {
		t.Error("expected an assigned transaction id")
	}

	// Credit of 400 would go negative: rejected, balance untouched.
	_, err = svc.AddTransaction(ctx, "1", models.TypeCredit, "400")
	var insufficient *ledger.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("credit 400: err = %v, want InsufficientBalanceError", err)
	}
	if insufficient.CurrentBalance.String() != "250" {
		t.Errorf("reported balance = %s, want 250", insufficient.CurrentBalance)
	}
	balance, err := svc.GetBalance(ctx, "1")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance.String() != "250" {
		t.Errorf("balance after rejected credit = %s, want 250", balance)
	}
	count, _ := store.CountTransactions(ctx, "1")
	if count != 1 {
		t.Errorf("rejected credit must not append a record, count = %d, want 1", count)
	}

	// Credit decreases the balance: 250 - 200 = 50.
	res, err = svc.AddTransaction(ctx, "1", models.TypeCredit, "200")
	if err != nil {
		t.Fatalf("credit 200 failed: %v", err)
	}
	if res.Balance.String() != "50" {
		t.Errorf("balance after credit = %s, want 50", res.Balance)
	}
}

func TestAddTransactionValidation(t *testing.T) {
	store := memory.NewMemoryLedgerStore()
	svc, _ := newTestLedger(t, store)
	ctx := context.Background()

	if _, err := svc.AddTransaction(ctx, "1", "transfer", "100"); !errors.Is(err, ledger.ErrInvalidTransactionType) {
		t.Errorf("unknown type: err = %v, want ErrInvalidTransactionType", err)
	}
	for _, bad := range []string{"", "abc", "1,5", "-5"} {
		if _, err := svc.AddTransaction(ctx, "1", models.TypeDebit, bad); !errors.Is(err, amount.ErrInvalidAmount) {
			t.Errorf("amount %q: err = %v, want ErrInvalidAmount", bad, err)
		}
	}

	// Validation failures happen before any store interaction.
	if count, _ := store.CountTransactions(ctx, "1"); count != 0 {
		t.Errorf("store was touched by invalid requests, count = %d", count)
	}
}

func TestBalanceConservation(t *testing.T) {
	store := memory.NewMemoryLedgerStore()
	svc, _ := newTestLedger(t, store)
	ctx := context.Background()

	steps := []struct {
		txType models.TransactionType
		amount string
	}{
		{models.TypeDebit, "0.1"},
		{models.TypeDebit, "0.2"},
		{models.TypeCredit, "0.3"},
		{models.TypeDebit, "1000000000.000000001"},
		{models.TypeCredit, "999999999.999999999"},
		{models.TypeDebit, "42"},
	}

	expected := amount.Zero()
	for _, step := range steps {
		amt := amount.MustParse(step.amount)
		if step.txType == models.TypeCredit {
			expected = expected.Sub(amt)
		} else {
			expected = expected.Add(amt)
		}

		res, err := svc.AddTransaction(ctx, "acct", step.txType, step.amount)
		if err != nil {
			t.Fatalf("%s %s failed: %v", step.txType, step.amount, err)
		}
		if !res.Balance.Equal(expected) {
			t.Fatalf("after %s %s: balance %s, want %s", step.txType, step.amount, res.Balance, expected)
		}
	}

	// 0.1 + 0.2 - 0.3 + 1000000000.000000001 - 999999999.999999999 + 42
	final, _ := svc.GetBalance(ctx, "acct")
	if final.String() != "42.000000002" {
		t.Errorf("final balance = %s, want 42.000000002", final)
	}
}

func TestConcurrentCreditsExactlyOneSucceeds(t *testing.T) {
	store := memory.NewMemoryLedgerStore()
	svc, _ := newTestLedger(t, store)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.SetBalance(ctx, "1", amount.MustParse("100")); err != nil {
		t.Fatalf("seeding balance failed: %v", err)
	}

	const workers = 8
	var (
		wg           sync.WaitGroup
		successes    atomic.Int64
		insufficient atomic.Int64
	)

	// Balance covers exactly one credit of 100; the rest must observe the
	// updated balance and be rejected.
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddTransaction(ctx, "1", models.TypeCredit, "100")
			switch {
			case err == nil:
				successes.Add(1)
			case isInsufficient(err):
				insufficient.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 {
		t.Errorf("%d credits succeeded, want exactly 1", successes.Load())
	}
	if insufficient.Load() != workers-1 {
		t.Errorf("%d credits rejected, want %d", insufficient.Load(), workers-1)
	}

	balance, _ := svc.GetBalance(ctx, "1")
	if balance.String() != "0" {
		t.Errorf("final balance = %s, want 0", balance)
	}
	count, _ := store.CountTransactions(ctx, "1")
	if count != 1 {
		t.Errorf("%d records appended, want 1", count)
	}
}

func isInsufficient(err error) bool {
	var target *ledger.InsufficientBalanceError
	return errors.As(err, &target)
}

// sectionTrackingStore counts how many critical sections are active between
// the balance read and the balance write.
type sectionTrackingStore struct {
	*memory.MemoryLedgerStore
	active  atomic.Int64
	maxSeen atomic.Int64
	delay   time.Duration
}

func (s *sectionTrackingStore) GetBalance(ctx context.Context, accountID string) (amount.Amount, error) {
	n := s.active.Add(1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(s.delay)
	return s.MemoryLedgerStore.GetBalance(ctx, accountID)
}

func (s *sectionTrackingStore) SetBalance(ctx context.Context, accountID string, balance amount.Amount) error {
	defer s.active.Add(-1)
	return s.MemoryLedgerStore.SetBalance(ctx, accountID, balance)
}

func TestCriticalSectionsNeverOverlap(t *testing.T) {
	store := &sectionTrackingStore{
		MemoryLedgerStore: memory.NewMemoryLedgerStore(),
		delay:             15 * time.Millisecond,
	}
	svc, _ := newTestLedger(t, store)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.AddTransaction(ctx, "1", models.TypeDebit, "10"); err != nil {
				t.Errorf("debit failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if store.maxSeen.Load() != 1 {
		t.Errorf("%d critical sections ran concurrently, want 1", store.maxSeen.Load())
	}
	balance, _ := svc.GetBalance(ctx, "1")
	if balance.String() != "30" {
		t.Errorf("final balance = %s, want 30", balance)
	}
}

// failingBalanceStore fails every SetBalance call.
type failingBalanceStore struct {
	*memory.MemoryLedgerStore
	fail atomic.Bool
}

func (s *failingBalanceStore) SetBalance(ctx context.Context, accountID string, balance amount.Amount) error {
	if s.fail.Load() {
		return errors.New("disk full")
	}
	return s.MemoryLedgerStore.SetBalance(ctx, accountID, balance)
}

func TestStoreWriteErrorReleasesLock(t *testing.T) {
	store := &failingBalanceStore{MemoryLedgerStore: memory.NewMemoryLedgerStore()}
	store.fail.Store(true)
	svc, _ := newTestLedger(t, store)
	ctx := context.Background()

	_, err := svc.AddTransaction(ctx, "1", models.TypeDebit, "10")
	var writeErr *ledger.StoreWriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("err = %v, want StoreWriteError", err)
	}

	// Fail-open: the lock was released despite the write failure, so the
	// next mutation proceeds immediately.
	store.fail.Store(false)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := svc.AddTransaction(ctx, "1", models.TypeDebit, "10"); err != nil {
			t.Errorf("mutation after store failure: %v", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock was not released after a store write failure")
	}
}

func TestLockUnavailableLeavesStoreUntouched(t *testing.T) {
	store := memory.NewMemoryLedgerStore()
	lockStore := lock.NewMemoryStore("shared")
	locks, err := lock.NewClient([]lock.Store{lockStore}, lock.Config{
		RetryCount: 1,
		RetryDelay: time.Millisecond,
	}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	svc := ledger.NewLedger(store, locks, nil, nil, nil)
	ctx := context.Background()

	// Hold the account's mutation lock from the outside.
	held, err := locks.Acquire(ctx, "account:1:mutate", 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer held.Release(ctx)

	_, err = svc.AddTransaction(ctx, "1", models.TypeDebit, "10")
	if !errors.Is(err, lock.ErrLockUnavailable) {
		t.Fatalf("err = %v, want ErrLockUnavailable", err)
	}
	if count, _ := store.CountTransactions(ctx, "1"); count != 0 {
		t.Errorf("store touched while lock unavailable, count = %d", count)
	}
}

func TestEventPublishedOnCommitOnly(t *testing.T) {
	store := memory.NewMemoryLedgerStore()
	pub := &capturePublisher{}
	svc := ledger.NewLedger(store, newTestLockClient(t), pub, nil, nil)
	ctx := context.Background()

	if _, err := svc.AddTransaction(ctx, "1", models.TypeDebit, "100"); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if pub.count() != 1 {
		t.Fatalf("published %d events after commit, want 1", pub.count())
	}

	// A rejected credit publishes nothing.
	if _, err := svc.AddTransaction(ctx, "1", models.TypeCredit, "500"); !isInsufficient(err) {
		t.Fatalf("err = %v, want InsufficientBalanceError", err)
	}
	if pub.count() != 1 {
		t.Errorf("published %d events after rejection, want 1", pub.count())
	}
}

func TestGetTransaction(t *testing.T) {
	store := memory.NewMemoryLedgerStore()
	svc, _ := newTestLedger(t, store)
	ctx := context.Background()

	res, err := svc.AddTransaction(ctx, "1", models.TypeDebit, "25")
	if err != nil {
		t.Fatalf("debit failed: %v", err)
	}

	tx, err := svc.GetTransaction(ctx, "1", res.TransactionID)
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if tx.Amount.String() != "25" || tx.Type != models.TypeDebit {
		t.Errorf("unexpected record: %+v", tx)
	}

	if _, err := svc.GetTransaction(ctx, "1", 99999); !errors.Is(err, models.ErrTransactionNotFound) {
		t.Errorf("err = %v, want ErrTransactionNotFound", err)
	}
}
