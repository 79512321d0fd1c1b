// Package memory provides the in-memory LedgerStore used by tests and
// single-node deployments without a database.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DmitryOnishchenko/accounting-notebook/internal/amount"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/interfaces"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/models"
)

// firstTransactionID keeps freshly assigned ids above the demo-seed range so
// both share one strictly increasing id space.
const firstTransactionID = 1000

type MemoryLedgerStore struct {
	mu           sync.RWMutex
	balances     map[string]amount.Amount
	transactions map[string][]models.Transaction
	nextID       int64
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		balances:     make(map[string]amount.Amount),
		transactions: make(map[string][]models.Transaction),
		nextID:       firstTransactionID,
	}
}

func (m *MemoryLedgerStore) GetBalance(ctx context.Context, accountID string) (amount.Amount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.balances[accountID], nil
}

func (m *MemoryLedgerStore) SetBalance(ctx context.Context, accountID string, balance amount.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances[accountID] = balance
	return nil
}

func (m *MemoryLedgerStore) AppendTransaction(ctx context.Context, accountID string, txType models.TransactionType, amt amount.Amount) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := models.Transaction{
		ID:        m.nextID,
		AccountID: accountID,
		Type:      txType,
		Amount:    amt,
		CreatedAt: time.Now().UTC(),
	}
	m.nextID++
	m.transactions[accountID] = append(m.transactions[accountID], tx)
	return tx, nil
}

func (m *MemoryLedgerStore) GetTransaction(ctx context.Context, accountID string, id int64) (models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, tx := range m.transactions[accountID] {
		if tx.ID == id {
			return tx, nil
		}
	}
	return models.Transaction{}, fmt.Errorf("%w: account %s, id %d", models.ErrTransactionNotFound, accountID, id)
}

func (m *MemoryLedgerStore) CountTransactions(ctx context.Context, accountID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.transactions[accountID]), nil
}

func (m *MemoryLedgerStore) ListTransactions(ctx context.Context, accountID string, offset, limit int) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txs := m.transactions[accountID]
	if offset < 0 || offset >= len(txs) || limit <= 0 {
		return []models.Transaction{}, nil
	}

	end := offset + limit
	if end > len(txs) {
		end = len(txs)
	}

	// Copy so callers cannot mutate internal state.
	page := make([]models.Transaction, end-offset)
	copy(page, txs[offset:end])
	return page, nil
}

// SeedDemoData loads the example dataset: account "1" with balance 150 and a
// short debit/credit history, plus a legacy high-volume account.
func (m *MemoryLedgerStore) SeedDemoData() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.balances["1"] = amount.MustParse("150")
	m.transactions["1"] = []models.Transaction{
		{ID: 123, AccountID: "1", Type: models.TypeDebit, Amount: amount.MustParse("100"), CreatedAt: time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)},
		{ID: 124, AccountID: "1", Type: models.TypeDebit, Amount: amount.MustParse("350"), CreatedAt: time.Date(2020, 1, 2, 17, 30, 0, 0, time.UTC)},
		{ID: 125, AccountID: "1", Type: models.TypeCredit, Amount: amount.MustParse("250"), CreatedAt: time.Date(2020, 1, 3, 11, 0, 0, 0, time.UTC)},
		{ID: 126, AccountID: "1", Type: models.TypeCredit, Amount: amount.MustParse("50"), CreatedAt: time.Date(2020, 1, 3, 22, 0, 0, 0, time.UTC)},
	}
	m.transactions["999"] = []models.Transaction{
		{ID: 1, AccountID: "999", Type: models.TypeDebit, Amount: amount.MustParse("125000000"), CreatedAt: time.Date(2015, 1, 1, 1, 0, 0, 0, time.UTC)},
	}
}

var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
