package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

type InitiateInput struct {
	TransactionRef string

	OrderRef  string
	MethodRef string

	Amount   decimal.Decimal
	Currency string

	CustomerInfo map[string]string
	Metadata     map[string]string
}

type InitiateOutput struct {
	ProviderTxnID *string
	GatewayRef    *string
	RedirectURL   *string
}

type ProcessOutcome string

const (
	OutcomeSucceeded ProcessOutcome = "succeeded"
	OutcomeFailed    ProcessOutcome = "failed"
	// OutcomePending means the provider has not reached a terminal state yet,
	// e.g. a hosted checkout the customer has not finished.
	OutcomePending ProcessOutcome = "pending"
)

type ProcessInput struct {
	TransactionRef string
	ProviderTxnID  string

	// CallbackData carries provider callback fields when the call is driven by
	// a webhook; it is empty when the engine polls the provider directly.
	CallbackData map[string]string
}

type ProcessOutput struct {
	Outcome ProcessOutcome

	ProviderTxnID    *string
	ProviderResponse string
	FailureReason    string
}

type RefundInput struct {
	RefundID      string
	ProviderTxnID string

	Amount   decimal.Decimal
	Currency string

	Reason string
	Notes  string
}

type RefundOutput struct {
	Succeeded bool

	ProviderRefundID *string
	FailureReason    string
}

// Gateway is the uniform contract every payment provider implementation must
// satisfy. Calls into a Gateway are the only operations in the service
// permitted to block on external I/O.
type Gateway interface {
	ID() string
	Initiate(ctx context.Context, input *InitiateInput) (*InitiateOutput, error)
	Process(ctx context.Context, input *ProcessInput) (*ProcessOutput, error)
	Refund(ctx context.Context, input *RefundInput) (*RefundOutput, error)
}
