package repository

import (
	"context"
	"fmt"

	"github.com/enobongmedem-code/darnumber-sub000/internal/models"
	"github.com/google/uuid"
)

const transactionColumns = `id, transaction_number, user_id, type, amount_micros, currency,
	balance_before_micros, balance_after_micros, status, order_id, external_reference, description, created_at`

func scanTransaction(row interface{ Scan(dest ...any) error }) (*models.Transaction, error) {
	t := &models.Transaction{}
	err := row.Scan(&t.ID, &t.TransactionNumber, &t.UserID, &t.Type, &t.AmountMicros, &t.Currency,
		&t.BalanceBeforeMicros, &t.BalanceAfterMicros, &t.Status, &t.OrderID, &t.ExternalReference,
		&t.Description, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// InsertTransaction appends one immutable ledger row. There is no update
// counterpart on purpose.
func (q *Queries) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `INSERT INTO transactions (id, transaction_number, user_id, type, amount_micros, currency,
			balance_before_micros, balance_after_micros, status, order_id, external_reference, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW()) RETURNING created_at`
	err := q.db.QueryRow(ctx, query, tx.ID, tx.TransactionNumber, tx.UserID, tx.Type, tx.AmountMicros,
		tx.Currency, tx.BalanceBeforeMicros, tx.BalanceAfterMicros, tx.Status, tx.OrderID,
		tx.ExternalReference, tx.Description).
		Scan(&tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (q *Queries) ListUserTransactions(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := q.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list user transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// ListUserTransactionsChronological returns the full ledger for one user in
// insertion order, for snapshot-chain verification.
func (q *Queries) ListUserTransactionsChronological(ctx context.Context, userID uuid.UUID) ([]models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE user_id = $1 ORDER BY created_at ASC, transaction_number ASC`
	rows, err := q.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list user transactions chronological: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// GetRefundTransactionForOrder returns the REFUND row linked to an order, if any.
func (q *Queries) GetRefundTransactionForOrder(ctx context.Context, orderID uuid.UUID) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE order_id = $1 AND type = 'REFUND'`
	return scanTransaction(q.db.QueryRow(ctx, query, orderID))
}

// GetTransactionByExternalReference returns the ledger row recorded for an
// external gateway reference, if any. Used for webhook replay detection.
func (q *Queries) GetTransactionByExternalReference(ctx context.Context, reference string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE external_reference = $1`
	return scanTransaction(q.db.QueryRow(ctx, query, reference))
}

// ListLedgerUserIDs returns the distinct users that have ledger entries.
func (q *Queries) ListLedgerUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `SELECT DISTINCT user_id FROM transactions`)
	if err != nil {
		return nil, fmt.Errorf("list ledger user ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ledger user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
