package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundCompleted RefundStatus = "completed"
	RefundFailed    RefundStatus = "failed"
)

type RefundReason string

const (
	RefundReasonRequestedByCustomer RefundReason = "requested_by_customer"
	RefundReasonDuplicate           RefundReason = "duplicate"
	RefundReasonFraudulent          RefundReason = "fraudulent"
	RefundReasonOrderCanceled       RefundReason = "order_canceled"
	RefundReasonOther               RefundReason = "other"
)

func ValidRefundReason(r RefundReason) bool {
	switch r {
	case RefundReasonRequestedByCustomer,
		RefundReasonDuplicate,
		RefundReasonFraudulent,
		RefundReasonOrderCanceled,
		RefundReasonOther:
		return true
	default:
		return false
	}
}

type Refund struct {
	ID string

	PaymentID uint64
	OrderRef  string

	Amount   decimal.Decimal
	Currency string

	Reason RefundReason
	Notes  *string

	Status RefundStatus

	RequestedBy      string
	ProviderRefundID *string
	FailureReason    *string

	CreatedAt   time.Time
	ProcessedAt *time.Time
	UpdatedAt   time.Time
}
