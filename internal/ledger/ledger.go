// Package ledger implements the guarded mutation protocol: every balance
// change runs as a read-validate-append-write sequence inside a distributed
// per-account lock.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DmitryOnishchenko/accounting-notebook/internal/amount"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/interfaces"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/lock"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/models"
	domainevents "github.com/DmitryOnishchenko/accounting-notebook/internal/models/events"
	"github.com/DmitryOnishchenko/accounting-notebook/pkg/metrics"
)

// defaultLockTTL must cover one store round trip plus margin.
const defaultLockTTL = 30 * time.Second

func mutationLockKey(accountID string) string {
	return fmt.Sprintf("account:%s:mutate", accountID)
}

// Result is the outcome of a committed transaction.
type Result struct {
	TransactionID int64
	Balance       amount.Amount
}

// History is one page of an account's transaction log.
type History struct {
	Total        int
	Transactions []models.Transaction
}

type Ledger struct {
	store     interfaces.LedgerStore
	locks     *lock.Client
	publisher interfaces.EventPublisher
	collector *metrics.MetricsCollector
	logger    *slog.Logger
	lockTTL   time.Duration
}

func NewLedger(
	store interfaces.LedgerStore,
	locks *lock.Client,
	publisher interfaces.EventPublisher,
	collector *metrics.MetricsCollector,
	logger *slog.Logger,
) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:     store,
		locks:     locks,
		publisher: publisher,
		collector: collector,
		logger:    logger,
		lockTTL:   defaultLockTTL,
	}
}

// SetLockTTL overrides the default TTL of the per-account mutation lock.
func (l *Ledger) SetLockTTL(ttl time.Duration) {
	if ttl > 0 {
		l.lockTTL = ttl
	}
}

// AddTransaction validates and commits one debit or credit against the
// account. The caller's ctx bounds both lock acquisition and the critical
// section; lock release is guaranteed on every exit path.
func (l *Ledger) AddTransaction(ctx context.Context, accountID string, txType models.TransactionType, amountStr string) (Result, error) {
	start := time.Now()

	if !txType.Valid() {
		l.record(txType, metrics.OutcomeValidationError, start)
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidTransactionType, txType)
	}
	amt, err := amount.Parse(amountStr)
	if err != nil {
		l.record(txType, metrics.OutcomeValidationError, start)
		return Result{}, err
	}
	if amt.IsNegative() {
		l.record(txType, metrics.OutcomeValidationError, start)
		return Result{}, fmt.Errorf("%w: amount must not be negative, got %q", amount.ErrInvalidAmount, amountStr)
	}

	l.logger.Info("applying transaction",
		slog.String("account_id", accountID),
		slog.String("type", string(txType)),
		slog.String("amount", amt.String()))

	var res Result
	err = l.locks.WithLock(ctx, mutationLockKey(accountID), l.lockTTL, func(ctx context.Context) error {
		if l.collector != nil {
			l.collector.RecordLockWait(time.Since(start))
		}
		return l.applyLocked(ctx, accountID, txType, amt, &res)
	})
	if err != nil {
		l.record(txType, outcomeFor(err), start)
		return Result{}, err
	}

	l.record(txType, metrics.OutcomeCommitted, start)
	l.publishCompleted(ctx, accountID, txType, amt, res)
	return res, nil
}

// applyLocked is the critical section. It runs only while the per-account
// mutation lock is held.
func (l *Ledger) applyLocked(ctx context.Context, accountID string, txType models.TransactionType, amt amount.Amount, res *Result) error {
	balance, err := l.store.GetBalance(ctx, accountID)
	if err != nil {
		return &StoreWriteError{AccountID: accountID, Op: "read balance", Err: err}
	}

	// Credit decreases the stored balance, debit increases it.
	var newBalance amount.Amount
	if txType == models.TypeCredit {
		newBalance = balance.Sub(amt)
		if newBalance.IsNegative() {
			l.logger.Warn("transaction rejected: not enough balance",
				slog.String("account_id", accountID),
				slog.String("amount", amt.String()),
				slog.String("current_balance", balance.String()))
			return &InsufficientBalanceError{CurrentBalance: balance}
		}
	} else {
		newBalance = balance.Add(amt)
	}

	tx, err := l.store.AppendTransaction(ctx, accountID, txType, amt)
	if err != nil {
		l.logger.Error("transaction append failed",
			slog.String("account_id", accountID),
			slog.String("type", string(txType)),
			slog.String("amount", amt.String()),
			slog.String("error", err.Error()))
		return &StoreWriteError{AccountID: accountID, Op: "append transaction", Err: err}
	}

	if err := l.store.SetBalance(ctx, accountID, newBalance); err != nil {
		// The transaction record exists but the balance write failed; log
		// everything needed for manual reconciliation.
		l.logger.Error("balance write failed after transaction append",
			slog.String("account_id", accountID),
			slog.Int64("transaction_id", tx.ID),
			slog.String("type", string(txType)),
			slog.String("amount", amt.String()),
			slog.String("attempted_balance", newBalance.String()),
			slog.String("error", err.Error()))
		return &StoreWriteError{AccountID: accountID, Op: "write balance", Err: err}
	}

	l.logger.Info("transaction committed",
		slog.String("account_id", accountID),
		slog.Int64("transaction_id", tx.ID),
		slog.String("type", string(txType)),
		slog.String("amount", amt.String()),
		slog.String("balance", newBalance.String()))

	*res = Result{TransactionID: tx.ID, Balance: newBalance}
	return nil
}

// GetBalance reads the balance directly, without the lock. A concurrent
// mutation may not be visible yet.
func (l *Ledger) GetBalance(ctx context.Context, accountID string) (amount.Amount, error) {
	return l.store.GetBalance(ctx, accountID)
}

// GetTransaction reads a single record by id, without the lock.
func (l *Ledger) GetTransaction(ctx context.Context, accountID string, id int64) (models.Transaction, error) {
	return l.store.GetTransaction(ctx, accountID, id)
}

func (l *Ledger) publishCompleted(ctx context.Context, accountID string, txType models.TransactionType, amt amount.Amount, res Result) {
	if l.publisher == nil {
		return
	}

	evt := domainevents.TransactionCompleted{
		EventID:       uuid.NewString(),
		TransactionID: res.TransactionID,
		AccountID:     accountID,
		Type:          string(txType),
		Amount:        amt.String(),
		Balance:       res.Balance.String(),
		OccurredAt:    time.Now().UTC(),
	}

	// Best effort: the transaction is already committed, a publish failure
	// must not fail the request.
	if err := l.publisher.Publish(ctx, accountID, evt); err != nil {
		l.logger.Warn("failed to publish transaction event",
			slog.String("account_id", accountID),
			slog.Int64("transaction_id", res.TransactionID),
			slog.String("error", err.Error()))
	}
}

func (l *Ledger) record(txType models.TransactionType, outcome string, start time.Time) {
	if l.collector != nil {
		l.collector.RecordTransaction(string(txType), outcome, time.Since(start))
	}
}

func outcomeFor(err error) string {
	switch {
	case isInsufficientBalance(err):
		return metrics.OutcomeInsufficientBalance
	case isLockUnavailable(err):
		return metrics.OutcomeLockUnavailable
	default:
		return metrics.OutcomeError
	}
}
