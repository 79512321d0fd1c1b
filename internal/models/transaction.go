package models

import (
	"errors"
	"time"

	"github.com/DmitryOnishchenko/accounting-notebook/internal/amount"
)

type TransactionType string

// Direction contract: a debit increases the stored balance and a credit
// decreases it (credit models money leaving the account). Downstream
// consumers depend on this sign convention.
const (
	TypeDebit  TransactionType = "debit"
	TypeCredit TransactionType = "credit"
)

func (t TransactionType) Valid() bool {
	return t == TypeDebit || t == TypeCredit
}

// Transaction is a single append-only ledger record. IDs are assigned by the
// store and are strictly increasing and unique store-wide, not just per
// account, so client-visible ordering stays stable.
type Transaction struct {
	ID        int64           `json:"id"`
	AccountID string          `json:"accountId"`
	Type      TransactionType `json:"type"`
	Amount    amount.Amount   `json:"amount"`
	CreatedAt time.Time       `json:"createdAt"`
}

var ErrTransactionNotFound = errors.New("transaction not found")
