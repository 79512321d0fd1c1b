package interfaces

import (
	"context"

	"github.com/DmitryOnishchenko/accounting-notebook/internal/amount"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/models"
)

// LedgerStore owns per-account balances and the append-only transaction log.
// Implementations are not required to provide atomicity across calls; the
// ledger service serializes every mutation sequence behind a distributed
// lock.
type LedgerStore interface {
	// GetBalance returns the current balance, or zero for an account that
	// has never been written.
	GetBalance(ctx context.Context, accountID string) (amount.Amount, error)

	SetBalance(ctx context.Context, accountID string, balance amount.Amount) error

	// AppendTransaction records a transaction and assigns it a store-wide
	// strictly increasing id.
	AppendTransaction(ctx context.Context, accountID string, txType models.TransactionType, amt amount.Amount) (models.Transaction, error)

	// GetTransaction returns models.ErrTransactionNotFound when no record
	// with the given id exists for the account.
	GetTransaction(ctx context.Context, accountID string, id int64) (models.Transaction, error)

	CountTransactions(ctx context.Context, accountID string) (int, error)

	// ListTransactions returns records in insertion order, oldest first.
	ListTransactions(ctx context.Context, accountID string, offset, limit int) ([]models.Transaction, error)
}
