package ledger

import (
	"context"
	"errors"
)

// MaxPageSize caps the number of records returned per history page,
// regardless of what the caller requests.
const MaxPageSize = 12

var ErrInvalidPageArgs = errors.New("page and pageSize must be at least 1")

// GetHistory returns one page of the account's transaction log, oldest
// first, alongside the total record count. Pages are 1-based; pageSize is
// clamped to MaxPageSize. The read is unlocked and fully deterministic
// given the store contents.
func (l *Ledger) GetHistory(ctx context.Context, accountID string, page, pageSize int) (History, error) {
	if page < 1 || pageSize < 1 {
		return History{}, ErrInvalidPageArgs
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	offset := (page - 1) * pageSize

	total, err := l.store.CountTransactions(ctx, accountID)
	if err != nil {
		return History{}, err
	}

	txs, err := l.store.ListTransactions(ctx, accountID, offset, pageSize)
	if err != nil {
		return History{}, err
	}

	return History{Total: total, Transactions: txs}, nil
}
