package ledger

import (
	"errors"
	"fmt"

	"github.com/DmitryOnishchenko/accounting-notebook/internal/amount"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/lock"
)

var ErrInvalidTransactionType = errors.New("invalid transaction type")

// InsufficientBalanceError rejects a credit that would drive the balance
// below zero. It is a domain result, not a system fault: nothing was
// written and the caller sees the balance the decision was made against.
type InsufficientBalanceError struct {
	CurrentBalance amount.Amount
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("not enough balance: current balance %s", e.CurrentBalance)
}

// StoreWriteError reports a ledger store failure inside the critical
// section. The lock is released regardless (fail-open), so the operation
// must not be blindly retried: the append and the balance write may have
// diverged and need reconciliation.
type StoreWriteError struct {
	AccountID string
	Op        string
	Err       error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("ledger store %s failed for account %s: %v", e.Op, e.AccountID, e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

func isInsufficientBalance(err error) bool {
	var target *InsufficientBalanceError
	return errors.As(err, &target)
}

func isLockUnavailable(err error) bool {
	return errors.Is(err, lock.ErrLockUnavailable)
}
