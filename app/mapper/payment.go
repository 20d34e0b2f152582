package mapper

import (
	"time"

	"github.com/meridianmarket/ms-go-payments/app/entity"
	"github.com/meridianmarket/ms-go-payments/app/types"
)

func PaymentToResponse(item *entity.Payment) *types.Payment {
	if item == nil {
		return nil
	}

	return &types.Payment{
		ID:             item.ID,
		RequestID:      item.RequestID,
		InitiatedBy:    item.InitiatedBy,
		OrderRef:       item.OrderRef,
		RequestedBy:    item.RequestedBy,
		MethodRef:      item.MethodRef,
		Gateway:        item.GatewayID,
		Amount:         item.Amount.String(),
		Currency:       item.Currency,
		Status:         string(item.Status),
		TransactionRef: item.TransactionRef,
		ProviderTxnID:  derefString(item.ProviderTxnID),
		RedirectURL:    derefString(item.RedirectURL),
		FailureReason:  derefString(item.FailureReason),
		RefundedAmount: item.RefundedAmount.String(),
		Metadata:       cloneMetadata(item.Metadata),
		CreatedAt:      item.CreatedAt.UTC().Format(time.RFC3339),
		ProcessedAt:    formatTimePtr(item.ProcessedAt),
		UpdatedAt:      item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func PaymentsToResponse(items []*entity.Payment) []*types.Payment {
	result := make([]*types.Payment, 0, len(items))
	for _, item := range items {
		result = append(result, PaymentToResponse(item))
	}
	return result
}

// PaymentToNotification wraps the payment in the notify envelope; the event
// name is the terminal status prefixed with "payment.".
func PaymentToNotification(item *entity.Payment) *types.PaymentNotification {
	return &types.PaymentNotification{
		Event:   "payment." + string(item.Status),
		Payment: PaymentToResponse(item),
	}
}

func TransactionToResponse(item *entity.Transaction) *types.Transaction {
	if item == nil {
		return nil
	}

	return &types.Transaction{
		ID:            item.ID,
		PaymentID:     item.PaymentID,
		Type:          string(item.Type),
		Status:        string(item.Status),
		Amount:        item.Amount.String(),
		Currency:      item.Currency,
		ProviderTxnID: derefString(item.ProviderTxnID),
		Detail:        derefString(item.Detail),
		ProcessedAt:   item.ProcessedAt.UTC().Format(time.RFC3339),
	}
}

func TransactionsToResponse(items []*entity.Transaction) []*types.Transaction {
	result := make([]*types.Transaction, 0, len(items))
	for _, item := range items {
		result = append(result, TransactionToResponse(item))
	}
	return result
}

func RefundToResponse(item *entity.Refund) *types.Refund {
	if item == nil {
		return nil
	}

	return &types.Refund{
		ID:               item.ID,
		PaymentID:        item.PaymentID,
		OrderRef:         item.OrderRef,
		Amount:           item.Amount.String(),
		Currency:         item.Currency,
		Reason:           string(item.Reason),
		Notes:            derefString(item.Notes),
		Status:           string(item.Status),
		RequestedBy:      item.RequestedBy,
		ProviderRefundID: derefString(item.ProviderRefundID),
		FailureReason:    derefString(item.FailureReason),
		CreatedAt:        item.CreatedAt.UTC().Format(time.RFC3339),
		ProcessedAt:      formatTimePtr(item.ProcessedAt),
		UpdatedAt:        item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func RefundsToResponse(items []*entity.Refund) []*types.Refund {
	result := make([]*types.Refund, 0, len(items))
	for _, item := range items {
		result = append(result, RefundToResponse(item))
	}
	return result
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func formatTimePtr(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339)
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
