package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/meridianmarket/ms-go-payments/app/entity"
)

var ErrRefundNotFound = errors.New("refund not found")

type RefundRepository struct {
	db DBTX
}

func NewRefundRepository(db DBTX) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) Create(ctx context.Context, refund *entity.Refund) error {
	query := `
		INSERT INTO refunds (
			id, payment_id, order_ref, amount, currency, reason, notes, status,
			requested_by, provider_refund_id, failure_reason,
			created_at, processed_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		refund.ID,
		refund.PaymentID,
		refund.OrderRef,
		refund.Amount,
		refund.Currency,
		string(refund.Reason),
		nullableStringValue(refund.Notes),
		string(refund.Status),
		refund.RequestedBy,
		nullableStringValue(refund.ProviderRefundID),
		nullableStringValue(refund.FailureReason),
		refund.CreatedAt,
		nullableTimeValue(refund.ProcessedAt),
		refund.UpdatedAt,
	)
	return err
}

func (r *RefundRepository) Update(ctx context.Context, refund *entity.Refund) error {
	query := `
		UPDATE refunds SET
			status = ?,
			provider_refund_id = ?,
			failure_reason = ?,
			processed_at = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(refund.Status),
		nullableStringValue(refund.ProviderRefundID),
		nullableStringValue(refund.FailureReason),
		nullableTimeValue(refund.ProcessedAt),
		refund.UpdatedAt,
		refund.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRefundNotFound
	}

	return nil
}

func (r *RefundRepository) FindByID(ctx context.Context, id string) (*entity.Refund, error) {
	query := refundSelect + ` WHERE id = ?`

	item, err := scanRefundRow(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *RefundRepository) ListByPayment(ctx context.Context, paymentID uint64) ([]*entity.Refund, error) {
	query := refundSelect + ` WHERE payment_id = ? ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refunds := make([]*entity.Refund, 0)
	for rows.Next() {
		item, err := scanRefundRow(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return refunds, nil
}

// SumPending totals in-flight refund requests; a pending refund reserves its
// amount against the payment's balance until it settles either way.
func (r *RefundRepository) SumPending(ctx context.Context, paymentID uint64) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM refunds
		WHERE payment_id = ? AND status = ?
	`

	var total decimal.Decimal
	err := r.db.QueryRowContext(ctx, query, paymentID, string(entity.RefundPending)).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

const refundSelect = `
	SELECT id, payment_id, order_ref, amount, currency, reason, notes, status,
		requested_by, provider_refund_id, failure_reason,
		created_at, processed_at, updated_at
	FROM refunds`

func scanRefundRow(scan rowScanner) (*entity.Refund, error) {
	item := &entity.Refund{}
	var reason, status string
	var notes sql.NullString
	var providerRefundID sql.NullString
	var failureReason sql.NullString
	var processedAt sql.NullTime

	err := scan.Scan(
		&item.ID,
		&item.PaymentID,
		&item.OrderRef,
		&item.Amount,
		&item.Currency,
		&reason,
		&notes,
		&status,
		&item.RequestedBy,
		&providerRefundID,
		&failureReason,
		&item.CreatedAt,
		&processedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Reason = entity.RefundReason(reason)
	item.Status = entity.RefundStatus(status)
	item.Notes = stringPtrFromNull(notes)
	item.ProviderRefundID = stringPtrFromNull(providerRefundID)
	item.FailureReason = stringPtrFromNull(failureReason)
	item.ProcessedAt = timePtrFromNull(processedAt)

	return item, nil
}
