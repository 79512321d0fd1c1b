// Package postgres provides the persistent LedgerStore backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/DmitryOnishchenko/accounting-notebook/internal/amount"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/interfaces"
	"github.com/DmitryOnishchenko/accounting-notebook/internal/models"
)

type PostgresLedgerStore struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*PostgresLedgerStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return NewPostgresLedgerStore(db), nil
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{db: db}
}

func (p *PostgresLedgerStore) Close() error {
	return p.db.Close()
}

func (p *PostgresLedgerStore) GetBalance(ctx context.Context, accountID string) (amount.Amount, error) {
	const query = `SELECT balance FROM balances WHERE account_id = $1`

	var raw string
	err := p.db.QueryRowContext(ctx, query, accountID).Scan(&raw)
	if err == sql.ErrNoRows {
		return amount.Zero(), nil
	}
	if err != nil {
		return amount.Zero(), err
	}
	return amount.Parse(raw)
}

func (p *PostgresLedgerStore) SetBalance(ctx context.Context, accountID string, balance amount.Amount) error {
	const query = `INSERT INTO balances (account_id, balance, updated_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (account_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = EXCLUDED.updated_at`

	_, err := p.db.ExecContext(ctx, query, accountID, balance.String(), time.Now().UTC())
	return err
}

func (p *PostgresLedgerStore) AppendTransaction(ctx context.Context, accountID string, txType models.TransactionType, amt amount.Amount) (models.Transaction, error) {
	const query = `INSERT INTO transactions (account_id, type, amount, created_at)
	VALUES ($1, $2, $3, $4)
	RETURNING id`

	createdAt := time.Now().UTC()
	tx := models.Transaction{
		AccountID: accountID,
		Type:      txType,
		Amount:    amt,
		CreatedAt: createdAt,
	}

	err := p.db.QueryRowContext(ctx, query, accountID, string(txType), amt.String(), createdAt).Scan(&tx.ID)
	if err != nil {
		return models.Transaction{}, err
	}
	return tx, nil
}

func (p *PostgresLedgerStore) GetTransaction(ctx context.Context, accountID string, id int64) (models.Transaction, error) {
	const query = `SELECT id, account_id, type, amount, created_at FROM transactions
	WHERE account_id = $1 AND id = $2`

	tx, err := scanTransaction(p.db.QueryRowContext(ctx, query, accountID, id))
	if err == sql.ErrNoRows {
		return models.Transaction{}, fmt.Errorf("%w: account %s, id %d", models.ErrTransactionNotFound, accountID, id)
	}
	if err != nil {
		return models.Transaction{}, err
	}
	return tx, nil
}

func (p *PostgresLedgerStore) CountTransactions(ctx context.Context, accountID string) (int, error) {
	const query = `SELECT count(*) FROM transactions WHERE account_id = $1`

	var count int
	if err := p.db.QueryRowContext(ctx, query, accountID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (p *PostgresLedgerStore) ListTransactions(ctx context.Context, accountID string, offset, limit int) ([]models.Transaction, error) {
	const query = `SELECT id, account_id, type, amount, created_at FROM transactions
	WHERE account_id = $1
	ORDER BY id ASC
	OFFSET $2 LIMIT $3`

	rows, err := p.db.QueryContext(ctx, query, accountID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]models.Transaction, 0, limit)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (models.Transaction, error) {
	var (
		tx     models.Transaction
		txType string
		rawAmt string
	)
	if err := row.Scan(&tx.ID, &tx.AccountID, &txType, &rawAmt, &tx.CreatedAt); err != nil {
		return models.Transaction{}, err
	}

	amt, err := amount.Parse(rawAmt)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("corrupt amount in transaction %d: %w", tx.ID, err)
	}
	tx.Type = models.TransactionType(txType)
	tx.Amount = amt
	return tx, nil
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
