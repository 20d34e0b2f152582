package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/meridianmarket/ms-go-payments/app/entity"
	"github.com/meridianmarket/ms-go-payments/app/gateway"
	"github.com/meridianmarket/ms-go-payments/app/types"
)

func completedPaymentFixture(t *testing.T, gw *serviceGateway) (*serviceFixture, *entity.Payment) {
	t.Helper()
	f := defaultFixture(gw)

	payment, err := f.svc.InitiatePayment(context.Background(), initiateRequest())
	if err != nil {
		t.Fatalf("initiate payment failed: %v", err)
	}
	payment, err = f.svc.ProcessPayment(context.Background(), payment.ID, nil)
	if err != nil {
		t.Fatalf("process payment failed: %v", err)
	}
	return f, payment
}

func refundRequest(paymentID uint64, amount string) *types.RefundRequest {
	return &types.RefundRequest{
		PaymentID:   paymentID,
		Amount:      amount,
		Reason:      "requested_by_customer",
		RequestedBy: "cust-1",
	}
}

func TestRequestRefundPartialChain(t *testing.T) {
	f, payment := completedPaymentFixture(t, &serviceGateway{})

	first, err := f.svc.RequestRefund(context.Background(), refundRequest(payment.ID, "40.00"))
	if err != nil {
		t.Fatalf("first refund failed: %v", err)
	}
	if first.Status != entity.RefundCompleted {
		t.Fatalf("expected completed refund, got %s", first.Status)
	}

	_, err = f.svc.RequestRefund(context.Background(), refundRequest(payment.ID, "70.00"))
	if !errors.Is(err, ErrExceedsBalance) {
		t.Fatalf("expected ErrExceedsBalance for 70.00 after 40.00, got %v", err)
	}

	second, err := f.svc.RequestRefund(context.Background(), refundRequest(payment.ID, "60.00"))
	if err != nil {
		t.Fatalf("second refund failed: %v", err)
	}
	if second.Status != entity.RefundCompleted {
		t.Fatalf("expected completed refund, got %s", second.Status)
	}

	updated, _ := f.paymentRepo.FindByID(context.Background(), payment.ID)
	if updated.Status != entity.PaymentRefunded {
		t.Fatalf("expected fully refunded payment, got %s", updated.Status)
	}
	if !updated.RefundedAmount.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("expected refunded amount 100.00, got %s", updated.RefundedAmount)
	}

	balance, err := f.svc.RefundableBalance(context.Background(), payment.ID)
	if err != nil {
		t.Fatalf("refundable balance failed: %v", err)
	}
	if !balance.IsZero() {
		t.Fatalf("expected zero balance, got %s", balance)
	}
}

func TestRequestRefundRequiresCompletedPayment(t *testing.T) {
	f := defaultFixture(&serviceGateway{})

	payment, err := f.svc.InitiatePayment(context.Background(), initiateRequest())
	if err != nil {
		t.Fatalf("initiate payment failed: %v", err)
	}

	_, err = f.svc.RequestRefund(context.Background(), refundRequest(payment.ID, "10.00"))
	if !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}
}

func TestRequestRefundRejectsFullyRefundedPayment(t *testing.T) {
	f, payment := completedPaymentFixture(t, &serviceGateway{})

	if _, err := f.svc.RequestRefund(context.Background(), refundRequest(payment.ID, "100.00")); err != nil {
		t.Fatalf("full refund failed: %v", err)
	}
	updated, _ := f.paymentRepo.FindByID(context.Background(), payment.ID)
	if updated.Status != entity.PaymentRefunded {
		t.Fatalf("expected refunded payment, got %s", updated.Status)
	}

	_, err := f.svc.RequestRefund(context.Background(), refundRequest(payment.ID, "10.00"))
	if !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted for refunded payment, got %v", err)
	}
}

func TestRequestRefundRejectsUnknownReason(t *testing.T) {
	f, payment := completedPaymentFixture(t, &serviceGateway{})

	req := refundRequest(payment.ID, "10.00")
	req.Reason = "buyer_remorse"
	_, err := f.svc.RequestRefund(context.Background(), req)
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestRequestRefundRejectsForeignRequester(t *testing.T) {
	f, payment := completedPaymentFixture(t, &serviceGateway{})

	req := refundRequest(payment.ID, "10.00")
	req.RequestedBy = "cust-2"
	_, err := f.svc.RequestRefund(context.Background(), req)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRequestRefundRejectsInvalidScale(t *testing.T) {
	f, payment := completedPaymentFixture(t, &serviceGateway{})

	_, err := f.svc.RequestRefund(context.Background(), refundRequest(payment.ID, "10.001"))
	if !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for sub-cent amount, got %v", err)
	}
}

func TestRequestRefundGatewayFailureReleasesReservation(t *testing.T) {
	f, payment := completedPaymentFixture(t, &serviceGateway{})

	f.gateway.refundOut = &gateway.RefundOutput{Succeeded: false, FailureReason: "refund_declined"}
	refund, err := f.svc.RequestRefund(context.Background(), refundRequest(payment.ID, "100.00"))
	if !errors.Is(err, ErrGatewayRejected) {
		t.Fatalf("expected ErrGatewayRejected, got %v", err)
	}
	if refund.Status != entity.RefundFailed {
		t.Fatalf("expected failed refund, got %s", refund.Status)
	}

	txns, _ := f.ledger.ListByPayment(context.Background(), payment.ID)
	var failedRefunds int
	for _, txn := range txns {
		if txn.Type == entity.TransactionRefund && txn.Status == entity.TransactionFailed {
			failedRefunds++
		}
	}
	if failedRefunds != 1 {
		t.Fatalf("expected one failed refund ledger entry, got %d", failedRefunds)
	}

	// The failed attempt releases its reservation; a retry can use the full
	// balance.
	f.gateway.refundOut = nil
	retry, err := f.svc.RequestRefund(context.Background(), refundRequest(payment.ID, "100.00"))
	if err != nil {
		t.Fatalf("retry refund failed: %v", err)
	}
	if retry.Status != entity.RefundCompleted {
		t.Fatalf("expected completed retry, got %s", retry.Status)
	}

	updated, _ := f.paymentRepo.FindByID(context.Background(), payment.ID)
	if updated.Status != entity.PaymentRefunded {
		t.Fatalf("expected refunded payment, got %s", updated.Status)
	}
}

func TestConcurrentRefundsNeverExceedBalance(t *testing.T) {
	f, payment := completedPaymentFixture(t, &serviceGateway{})

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			req := refundRequest(payment.ID, "60.00")
			_, results[slot] = f.svc.RequestRefund(context.Background(), req)
		}(i)
	}
	wg.Wait()

	var succeeded, exceeded int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrExceedsBalance):
			exceeded++
		default:
			t.Fatalf("unexpected refund error: %v", err)
		}
	}
	if succeeded != 1 || exceeded != 1 {
		t.Fatalf("expected exactly one success and one balance rejection, got success=%d exceeded=%d", succeeded, exceeded)
	}

	refunded, _ := f.ledger.SumSucceededRefunds(context.Background(), payment.ID)
	if !refunded.Equal(decimal.RequireFromString("60.00")) {
		t.Fatalf("expected 60.00 refunded on ledger, got %s", refunded)
	}
}

func TestGetRefundScopedToPayment(t *testing.T) {
	f, payment := completedPaymentFixture(t, &serviceGateway{})

	refund, err := f.svc.RequestRefund(context.Background(), refundRequest(payment.ID, "40.00"))
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	got, err := f.svc.GetRefund(context.Background(), payment.ID, refund.ID)
	if err != nil {
		t.Fatalf("get refund failed: %v", err)
	}
	if got.ID != refund.ID || got.Status != entity.RefundCompleted {
		t.Fatalf("unexpected refund: %+v", got)
	}

	if _, err := f.svc.GetRefund(context.Background(), payment.ID+1, refund.ID); !errors.Is(err, ErrRefundNotFound) {
		t.Fatalf("expected ErrRefundNotFound for foreign payment, got %v", err)
	}
	if _, err := f.svc.GetRefund(context.Background(), payment.ID, "rf-missing"); !errors.Is(err, ErrRefundNotFound) {
		t.Fatalf("expected ErrRefundNotFound for unknown refund, got %v", err)
	}
}

func TestListRefundsRequiresKnownPayment(t *testing.T) {
	f := defaultFixture(&serviceGateway{})

	_, err := f.svc.ListRefunds(context.Background(), 42)
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}
