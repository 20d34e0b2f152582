package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// Terminal reports whether no further lifecycle transition is permitted.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentFailed || s == PaymentRefunded
}

func ValidPaymentStatus(s PaymentStatus) bool {
	switch s {
	case PaymentPending, PaymentProcessing, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	default:
		return false
	}
}

const (
	NotifyStateNone    int32 = 0
	NotifyStatePending int32 = 1
	NotifyStateSuccess int32 = 10
	NotifyStateFailed  int32 = 20
)

type Payment struct {
	ID uint64

	RequestID   string
	InitiatedBy string

	OrderRef    string
	RequestedBy string
	MethodRef   string
	GatewayID   string

	// ActiveOrderRef mirrors OrderRef while the payment is non-failed and is
	// NULLed on terminal failure; the unique index on it enforces at most one
	// active payment per order.
	ActiveOrderRef *string

	Amount   decimal.Decimal
	Currency string

	Status PaymentStatus

	TransactionRef string
	ProviderTxnID  *string
	GatewayRef     *string
	RedirectURL    *string
	FailureReason  *string

	RefundedAmount decimal.Decimal

	Metadata map[string]string

	NotifyURL      string
	NotifyState    int32
	NotifyAttempts int32
	NotifyNextAt   *time.Time
	NotifyLastErr  *string

	CreatedAt   time.Time
	ProcessedAt *time.Time
	UpdatedAt   time.Time
}

// Active reports whether this payment blocks a new payment attempt for its
// order. Only a terminal failure frees the order slot.
func (p *Payment) Active() bool {
	return p.Status != PaymentFailed
}
