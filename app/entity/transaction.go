package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionCharge TransactionType = "charge"
	TransactionRefund TransactionType = "refund"
)

type TransactionStatus string

const (
	TransactionSucceeded TransactionStatus = "succeeded"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is one immutable ledger entry. Rows are appended once and never
// updated or deleted; the ledger is the source of truth for how much money
// actually moved, independent of the payment's mutable status.
type Transaction struct {
	ID uint64

	PaymentID uint64

	Type   TransactionType
	Status TransactionStatus

	Amount   decimal.Decimal
	Currency string

	ProviderTxnID *string
	Detail        *string

	ProcessedAt time.Time
}
