package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianmarket/ms-go-payments/app/entity"
	"github.com/meridianmarket/ms-go-payments/app/gateway"
	"github.com/meridianmarket/ms-go-payments/app/metrics"
	"github.com/meridianmarket/ms-go-payments/app/money"
	"github.com/meridianmarket/ms-go-payments/app/repository"
	"github.com/meridianmarket/ms-go-payments/app/types"
)

// RequestRefund validates and reserves the refund under the payment lock,
// then settles it against the gateway outside the lock. A pending refund
// reserves its amount, so two concurrent requests can never jointly exceed
// the refundable balance.
func (s *PaymentService) RequestRefund(ctx context.Context, req *types.RefundRequest) (*entity.Refund, error) {
	reason := entity.RefundReason(strings.TrimSpace(req.Reason))
	if !entity.ValidRefundReason(reason) {
		return nil, fmt.Errorf("%w: unknown refund reason %q", ErrInvalidRequest, reason)
	}
	requestedBy := strings.TrimSpace(req.RequestedBy)
	if requestedBy == "" {
		return nil, ErrInvalidRequest
	}

	refund, payment, err := s.reserveRefund(ctx, req, reason, requestedBy)
	if err != nil {
		return nil, err
	}

	gw, err := s.gatewayReg.Get(payment.GatewayID)
	if err != nil {
		releaseErr := s.failRefund(ctx, refund, payment, "gateway unavailable")
		if releaseErr != nil {
			return nil, releaseErr
		}
		return refund, ErrGatewayUnavailable
	}

	input := &gateway.RefundInput{
		RefundID: refund.ID,
		Amount:   refund.Amount,
		Currency: refund.Currency,
		Reason:   string(refund.Reason),
	}
	if payment.ProviderTxnID != nil {
		input.ProviderTxnID = *payment.ProviderTxnID
	}
	if refund.Notes != nil {
		input.Notes = *refund.Notes
	}

	output, err := gw.Refund(ctx, input)
	if err != nil {
		failureReason := truncate(err.Error(), 1024)
		if failErr := s.failRefund(ctx, refund, payment, failureReason); failErr != nil {
			return nil, failErr
		}
		metrics.Refunds.WithLabelValues(gw.ID(), "failed").Inc()
		return refund, fmt.Errorf("%w: %s", ErrGatewayRejected, failureReason)
	}

	if !output.Succeeded {
		failureReason := strings.TrimSpace(output.FailureReason)
		if failureReason == "" {
			failureReason = "refund rejected"
		}
		failureReason = truncate(failureReason, 1024)
		if failErr := s.failRefund(ctx, refund, payment, failureReason); failErr != nil {
			return nil, failErr
		}
		metrics.Refunds.WithLabelValues(gw.ID(), "failed").Inc()
		return refund, fmt.Errorf("%w: %s", ErrGatewayRejected, failureReason)
	}

	if err := s.completeRefund(ctx, refund, payment, output.ProviderRefundID); err != nil {
		return nil, err
	}
	metrics.Refunds.WithLabelValues(gw.ID(), "succeeded").Inc()
	return refund, nil
}

// reserveRefund performs the balance check and creates the pending refund row
// while holding the payment lock, with the repository's conditional update as
// the storage-level backstop.
func (s *PaymentService) reserveRefund(
	ctx context.Context,
	req *types.RefundRequest,
	reason entity.RefundReason,
	requestedBy string,
) (*entity.Refund, *entity.Payment, error) {
	unlock := s.locks.Lock("payment:" + strconv.FormatUint(req.PaymentID, 10))
	defer unlock()

	payment, err := s.paymentRepo.FindByID(ctx, req.PaymentID)
	if err != nil {
		return nil, nil, err
	}
	if payment == nil {
		return nil, nil, ErrPaymentNotFound
	}
	if payment.RequestedBy != requestedBy && payment.InitiatedBy != requestedBy {
		return nil, nil, ErrUnauthorized
	}
	if payment.Status != entity.PaymentCompleted {
		return nil, nil, ErrNotCompleted
	}

	amount, err := money.Parse(strings.TrimSpace(req.Amount), payment.Currency)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	refunded, err := s.ledger.SumSucceededRefunds(ctx, payment.ID)
	if err != nil {
		return nil, nil, err
	}
	pending, err := s.refundRepo.SumPending(ctx, payment.ID)
	if err != nil {
		return nil, nil, err
	}

	balance := payment.Amount.Sub(refunded).Sub(pending)
	if amount.GreaterThan(balance) {
		return nil, nil, fmt.Errorf("%w: %s exceeds refundable balance %s %s",
			ErrExceedsBalance, amount.String(), balance.String(), payment.Currency)
	}

	now := time.Now().UTC()
	if err := s.paymentRepo.ReserveRefund(ctx, payment.ID, amount, now); err != nil {
		if errors.Is(err, repository.ErrRefundOverdraw) {
			return nil, nil, fmt.Errorf("%w: %s exceeds refundable balance", ErrExceedsBalance, amount.String())
		}
		return nil, nil, err
	}
	payment.RefundedAmount = payment.RefundedAmount.Add(amount)

	refund := &entity.Refund{
		ID:          uuid.NewString(),
		PaymentID:   payment.ID,
		OrderRef:    payment.OrderRef,
		Amount:      amount,
		Currency:    payment.Currency,
		Reason:      reason,
		Status:      entity.RefundPending,
		RequestedBy: requestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		trimmed := truncate(notes, 1024)
		refund.Notes = &trimmed
	}
	if err := s.refundRepo.Create(ctx, refund); err != nil {
		if releaseErr := s.paymentRepo.ReleaseRefund(ctx, payment.ID, amount, now); releaseErr != nil {
			return nil, nil, releaseErr
		}
		return nil, nil, err
	}

	return refund, payment, nil
}

func (s *PaymentService) completeRefund(ctx context.Context, refund *entity.Refund, payment *entity.Payment, providerRefundID *string) error {
	unlock := s.locks.Lock("payment:" + strconv.FormatUint(payment.ID, 10))
	defer unlock()

	now := time.Now().UTC()
	if err := s.ledger.Append(ctx, &entity.Transaction{
		PaymentID:     payment.ID,
		Type:          entity.TransactionRefund,
		Status:        entity.TransactionSucceeded,
		Amount:        refund.Amount,
		Currency:      refund.Currency,
		ProviderTxnID: providerRefundID,
		ProcessedAt:   now,
	}); err != nil {
		return err
	}

	refund.Status = entity.RefundCompleted
	refund.ProviderRefundID = providerRefundID
	processedAt := now
	refund.ProcessedAt = &processedAt
	refund.UpdatedAt = now
	if err := s.refundRepo.Update(ctx, refund); err != nil {
		return err
	}

	refunded, err := s.ledger.SumSucceededRefunds(ctx, payment.ID)
	if err != nil {
		return err
	}
	if refunded.GreaterThanOrEqual(payment.Amount) {
		fresh, err := s.paymentRepo.FindByID(ctx, payment.ID)
		if err != nil {
			return err
		}
		if fresh != nil {
			s.transition(fresh, entity.PaymentRefunded, now)
			if err := s.paymentRepo.Update(ctx, fresh); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *PaymentService) failRefund(ctx context.Context, refund *entity.Refund, payment *entity.Payment, reason string) error {
	unlock := s.locks.Lock("payment:" + strconv.FormatUint(payment.ID, 10))
	defer unlock()

	now := time.Now().UTC()
	if err := s.ledger.Append(ctx, &entity.Transaction{
		PaymentID:   payment.ID,
		Type:        entity.TransactionRefund,
		Status:      entity.TransactionFailed,
		Amount:      refund.Amount,
		Currency:    refund.Currency,
		Detail:      &reason,
		ProcessedAt: now,
	}); err != nil {
		return err
	}

	refund.Status = entity.RefundFailed
	refund.FailureReason = &reason
	refund.UpdatedAt = now
	if err := s.refundRepo.Update(ctx, refund); err != nil {
		return err
	}

	// The failed refund no longer reserves balance.
	return s.paymentRepo.ReleaseRefund(ctx, payment.ID, refund.Amount, now)
}

func (s *PaymentService) GetRefund(ctx context.Context, paymentID uint64, refundID string) (*entity.Refund, error) {
	refund, err := s.refundRepo.FindByID(ctx, strings.TrimSpace(refundID))
	if err != nil {
		if errors.Is(err, repository.ErrRefundNotFound) {
			return nil, ErrRefundNotFound
		}
		return nil, err
	}
	if refund == nil || refund.PaymentID != paymentID {
		return nil, ErrRefundNotFound
	}
	return refund, nil
}

func (s *PaymentService) ListRefunds(ctx context.Context, paymentID uint64) ([]*entity.Refund, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return s.refundRepo.ListByPayment(ctx, paymentID)
}

// RefundableBalance returns the amount still available for refund.
func (s *PaymentService) RefundableBalance(ctx context.Context, paymentID uint64) (decimal.Decimal, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return decimal.Zero, err
	}
	if payment == nil {
		return decimal.Zero, ErrPaymentNotFound
	}

	refunded, err := s.ledger.SumSucceededRefunds(ctx, paymentID)
	if err != nil {
		return decimal.Zero, err
	}
	pending, err := s.refundRepo.SumPending(ctx, paymentID)
	if err != nil {
		return decimal.Zero, err
	}

	return payment.Amount.Sub(refunded).Sub(pending), nil
}
