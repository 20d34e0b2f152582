package repository

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/meridianmarket/ms-go-payments/app/entity"
)

// TransactionRepository is the ledger store. It deliberately exposes only
// append and read operations; rows are immutable once written.
type TransactionRepository struct {
	db DBTX
}

func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Append(ctx context.Context, txn *entity.Transaction) error {
	query := `
		INSERT INTO transactions (
			payment_id, type, status, amount, currency, provider_txn_id, detail, processed_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		txn.PaymentID,
		string(txn.Type),
		string(txn.Status),
		txn.Amount,
		txn.Currency,
		nullableStringValue(txn.ProviderTxnID),
		nullableStringValue(txn.Detail),
		txn.ProcessedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	txn.ID = uint64(id)

	return nil
}

func (r *TransactionRepository) ListByPayment(ctx context.Context, paymentID uint64) ([]*entity.Transaction, error) {
	query := `
		SELECT id, payment_id, type, status, amount, currency, provider_txn_id, detail, processed_at
		FROM transactions
		WHERE payment_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := make([]*entity.Transaction, 0)
	for rows.Next() {
		item, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return txns, nil
}

// FindSucceededCharge looks up a successful charge by provider transaction id,
// used to deduplicate repeated provider callbacks.
func (r *TransactionRepository) FindSucceededCharge(ctx context.Context, paymentID uint64, providerTxnID string) (*entity.Transaction, error) {
	query := `
		SELECT id, payment_id, type, status, amount, currency, provider_txn_id, detail, processed_at
		FROM transactions
		WHERE payment_id = ? AND type = ? AND status = ? AND provider_txn_id = ?
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, query,
		paymentID, string(entity.TransactionCharge), string(entity.TransactionSucceeded), providerTxnID)

	item, err := scanTransactionRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// SumSucceededRefunds computes how much of the payment has actually been
// returned, from the ledger alone.
func (r *TransactionRepository) SumSucceededRefunds(ctx context.Context, paymentID uint64) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE payment_id = ? AND type = ? AND status = ?
	`

	var total decimal.Decimal
	err := r.db.QueryRowContext(ctx, query,
		paymentID, string(entity.TransactionRefund), string(entity.TransactionSucceeded)).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func scanTransaction(rows *sql.Rows) (*entity.Transaction, error) {
	return scanTransactionRow(rows)
}

func scanTransactionRow(scan rowScanner) (*entity.Transaction, error) {
	item := &entity.Transaction{}
	var txnType, status string
	var providerTxnID sql.NullString
	var detail sql.NullString

	err := scan.Scan(
		&item.ID,
		&item.PaymentID,
		&txnType,
		&status,
		&item.Amount,
		&item.Currency,
		&providerTxnID,
		&detail,
		&item.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Type = entity.TransactionType(txnType)
	item.Status = entity.TransactionStatus(status)
	item.ProviderTxnID = stringPtrFromNull(providerTxnID)
	item.Detail = stringPtrFromNull(detail)

	return item, nil
}
