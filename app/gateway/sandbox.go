package gateway

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/meridianmarket/ms-go-payments/app/money"
)

const SandboxID = "sandbox"

// Sandbox is an in-process gateway for development and tests. Outcomes are
// deterministic: amounts whose minor units end in 99 are declined at process
// time, 98 at refund time. Callback data may force an outcome explicitly.
type Sandbox struct{}

func NewSandbox() *Sandbox {
	return &Sandbox{}
}

func (g *Sandbox) ID() string {
	return SandboxID
}

func (g *Sandbox) Initiate(_ context.Context, input *InitiateInput) (*InitiateOutput, error) {
	txnID := "sbx_" + uuid.NewString()
	ref := "sbxch_" + uuid.NewString()
	redirect := "https://sandbox.invalid/checkout/" + input.TransactionRef
	return &InitiateOutput{
		ProviderTxnID: &txnID,
		GatewayRef:    &ref,
		RedirectURL:   &redirect,
	}, nil
}

func (g *Sandbox) Process(_ context.Context, input *ProcessInput) (*ProcessOutput, error) {
	result := &ProcessOutput{ProviderResponse: `{"sandbox":true}`}
	if input.ProviderTxnID != "" {
		id := input.ProviderTxnID
		result.ProviderTxnID = &id
	}

	switch strings.ToLower(input.CallbackData["outcome"]) {
	case "failed":
		result.Outcome = OutcomeFailed
		result.FailureReason = "forced failure"
		return result, nil
	case "pending":
		result.Outcome = OutcomePending
		return result, nil
	}

	if amount, ok := input.CallbackData["amount"]; ok {
		currency := input.CallbackData["currency"]
		if parsed, err := money.Parse(amount, currency); err == nil && minorUnits(parsed, currency)%100 == 99 {
			result.Outcome = OutcomeFailed
			result.FailureReason = "card_declined"
			return result, nil
		}
	}

	result.Outcome = OutcomeSucceeded
	return result, nil
}

func (g *Sandbox) Refund(_ context.Context, input *RefundInput) (*RefundOutput, error) {
	if minorUnits(input.Amount, input.Currency)%100 == 98 {
		return &RefundOutput{FailureReason: "refund_declined"}, nil
	}
	refundID := "sbxrf_" + uuid.NewString()
	return &RefundOutput{Succeeded: true, ProviderRefundID: &refundID}, nil
}
