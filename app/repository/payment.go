package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianmarket/ms-go-payments/app/entity"
)

var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentAlreadyExists = errors.New("payment already exists")
	ErrActivePaymentExists  = errors.New("active payment already exists for order")
	ErrRefundOverdraw       = errors.New("refund reservation exceeds payment amount")
)

const paymentColumns = `id, request_id, initiated_by, order_ref, requested_by, method_ref, gateway_id,
		active_order_ref, amount, currency, status, transaction_ref,
		provider_txn_id, gateway_ref, redirect_url, failure_reason,
		refunded_amount, metadata_json,
		notify_url, notify_state, notify_attempts, notify_next_at, notify_last_error,
		created_at, processed_at, updated_at`

type PaymentFilter struct {
	RequestID   string
	InitiatedBy string
	OrderRef    string
	GatewayID   string
	HasStatus   bool
	Status      entity.PaymentStatus
	Limit       int32
	Offset      int32
}

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	metadataJSON, err := serializeMetadata(payment.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO payments (
			request_id, initiated_by, order_ref, requested_by, method_ref, gateway_id,
			active_order_ref, amount, currency, status, transaction_ref,
			provider_txn_id, gateway_ref, redirect_url, failure_reason,
			refunded_amount, metadata_json,
			notify_url, notify_state, notify_attempts, notify_next_at, notify_last_error,
			created_at, processed_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		payment.RequestID,
		payment.InitiatedBy,
		payment.OrderRef,
		payment.RequestedBy,
		payment.MethodRef,
		payment.GatewayID,
		nullableStringValue(payment.ActiveOrderRef),
		payment.Amount,
		payment.Currency,
		string(payment.Status),
		payment.TransactionRef,
		nullableStringValue(payment.ProviderTxnID),
		nullableStringValue(payment.GatewayRef),
		nullableStringValue(payment.RedirectURL),
		nullableStringValue(payment.FailureReason),
		payment.RefundedAmount,
		metadataJSON,
		payment.NotifyURL,
		payment.NotifyState,
		payment.NotifyAttempts,
		nullableTimeValue(payment.NotifyNextAt),
		nullableStringValue(payment.NotifyLastErr),
		payment.CreatedAt,
		nullableTimeValue(payment.ProcessedAt),
		payment.UpdatedAt,
	)
	if err != nil {
		if duplicateEntryOnKey(err, "uniq_payments_active_order") {
			return ErrActivePaymentExists
		}
		if isDuplicateEntryError(err) {
			return ErrPaymentAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	payment.ID = uint64(id)
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, payment *entity.Payment) error {
	metadataJSON, err := serializeMetadata(payment.Metadata)
	if err != nil {
		return err
	}

	query := `
		UPDATE payments SET
			active_order_ref = ?,
			status = ?,
			provider_txn_id = ?,
			gateway_ref = ?,
			redirect_url = ?,
			failure_reason = ?,
			metadata_json = ?,
			notify_url = ?,
			notify_state = ?,
			notify_attempts = ?,
			notify_next_at = ?,
			notify_last_error = ?,
			processed_at = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		nullableStringValue(payment.ActiveOrderRef),
		string(payment.Status),
		nullableStringValue(payment.ProviderTxnID),
		nullableStringValue(payment.GatewayRef),
		nullableStringValue(payment.RedirectURL),
		nullableStringValue(payment.FailureReason),
		metadataJSON,
		payment.NotifyURL,
		payment.NotifyState,
		payment.NotifyAttempts,
		nullableTimeValue(payment.NotifyNextAt),
		nullableStringValue(payment.NotifyLastErr),
		nullableTimeValue(payment.ProcessedAt),
		payment.UpdatedAt,
		payment.ID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrPaymentNotFound
	}

	return nil
}

// ReserveRefund atomically adds amount to the payment's refunded total,
// failing when the reservation would exceed the payment amount. This is the
// storage-level guard against two racing refunds jointly overdrawing.
func (r *PaymentRepository) ReserveRefund(ctx context.Context, id uint64, amount decimal.Decimal, now time.Time) error {
	query := `
		UPDATE payments
		SET refunded_amount = refunded_amount + ?, updated_at = ?
		WHERE id = ? AND refunded_amount + ? <= amount
	`

	result, err := r.db.ExecContext(ctx, query, amount, now, id, amount)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRefundOverdraw
	}
	return nil
}

// ReleaseRefund returns a failed refund's reservation to the balance.
func (r *PaymentRepository) ReleaseRefund(ctx context.Context, id uint64, amount decimal.Decimal, now time.Time) error {
	query := `
		UPDATE payments
		SET refunded_amount = refunded_amount - ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.ExecContext(ctx, query, amount, now, id)
	return err
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uint64) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, id), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) FindByCallerRequestID(ctx context.Context, initiatedBy, requestID string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE initiated_by = ? AND request_id = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, initiatedBy, requestID), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) FindByTransactionRef(ctx context.Context, gatewayID, transactionRef string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_id = ? AND transaction_ref = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, gatewayID, transactionRef), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) FindActiveByOrderRef(ctx context.Context, orderRef string) (*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE active_order_ref = ? LIMIT 1`

	payment := &entity.Payment{}
	if err := scanPayment(r.db.QueryRowContext(ctx, query, orderRef), payment); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return payment, nil
}

func (r *PaymentRepository) List(ctx context.Context, filter PaymentFilter) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments`

	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 7)

	if strings.TrimSpace(filter.RequestID) != "" {
		conditions = append(conditions, "request_id = ?")
		args = append(args, filter.RequestID)
	}
	if strings.TrimSpace(filter.InitiatedBy) != "" {
		conditions = append(conditions, "initiated_by = ?")
		args = append(args, filter.InitiatedBy)
	}
	if strings.TrimSpace(filter.OrderRef) != "" {
		conditions = append(conditions, "order_ref = ?")
		args = append(args, filter.OrderRef)
	}
	if strings.TrimSpace(filter.GatewayID) != "" {
		conditions = append(conditions, "gateway_id = ?")
		args = append(args, filter.GatewayID)
	}
	if filter.HasStatus {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item, err := scanPaymentFromRows(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

func (r *PaymentRepository) ListDueNotify(ctx context.Context, now time.Time, limit int32) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE notify_state = ?
		  AND notify_next_at IS NOT NULL
		  AND notify_next_at <= ?
		ORDER BY notify_next_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, entity.NotifyStatePending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item, err := scanPaymentFromRows(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

func (r *PaymentRepository) ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE status IN (?, ?)
		  AND provider_txn_id IS NOT NULL
		  AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query,
		string(entity.PaymentPending), string(entity.PaymentProcessing), before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]*entity.Payment, 0)
	for rows.Next() {
		item, err := scanPaymentFromRows(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(scan rowScanner, payment *entity.Payment) error {
	var activeOrderRef sql.NullString
	var status string
	var providerTxnID sql.NullString
	var gatewayRef sql.NullString
	var redirectURL sql.NullString
	var failureReason sql.NullString
	var metadataJSON string
	var notifyNextAt sql.NullTime
	var notifyLastErr sql.NullString
	var processedAt sql.NullTime

	err := scan.Scan(
		&payment.ID,
		&payment.RequestID,
		&payment.InitiatedBy,
		&payment.OrderRef,
		&payment.RequestedBy,
		&payment.MethodRef,
		&payment.GatewayID,
		&activeOrderRef,
		&payment.Amount,
		&payment.Currency,
		&status,
		&payment.TransactionRef,
		&providerTxnID,
		&gatewayRef,
		&redirectURL,
		&failureReason,
		&payment.RefundedAmount,
		&metadataJSON,
		&payment.NotifyURL,
		&payment.NotifyState,
		&payment.NotifyAttempts,
		&notifyNextAt,
		&notifyLastErr,
		&payment.CreatedAt,
		&processedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return err
	}

	payment.Status = entity.PaymentStatus(status)
	payment.ActiveOrderRef = stringPtrFromNull(activeOrderRef)
	payment.ProviderTxnID = stringPtrFromNull(providerTxnID)
	payment.GatewayRef = stringPtrFromNull(gatewayRef)
	payment.RedirectURL = stringPtrFromNull(redirectURL)
	payment.FailureReason = stringPtrFromNull(failureReason)
	payment.NotifyNextAt = timePtrFromNull(notifyNextAt)
	payment.NotifyLastErr = stringPtrFromNull(notifyLastErr)
	payment.ProcessedAt = timePtrFromNull(processedAt)

	metadata, err := parseMetadata(metadataJSON)
	if err != nil {
		return err
	}
	payment.Metadata = metadata

	return nil
}

func scanPaymentFromRows(rows *sql.Rows) (*entity.Payment, error) {
	item := &entity.Payment{}
	if err := scanPayment(rows, item); err != nil {
		return nil, err
	}
	return item, nil
}
