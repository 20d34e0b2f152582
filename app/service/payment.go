package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianmarket/ms-go-payments/app/client"
	"github.com/meridianmarket/ms-go-payments/app/entity"
	"github.com/meridianmarket/ms-go-payments/app/gateway"
	"github.com/meridianmarket/ms-go-payments/app/metrics"
	"github.com/meridianmarket/ms-go-payments/app/money"
	"github.com/meridianmarket/ms-go-payments/app/repository"
	"github.com/meridianmarket/ms-go-payments/app/types"
	"github.com/meridianmarket/ms-go-payments/config"
)

const (
	defaultListLimit = int32(100)
	defaultBatchSize = int32(100)
)

type paymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	Update(ctx context.Context, payment *entity.Payment) error
	ReserveRefund(ctx context.Context, id uint64, amount decimal.Decimal, now time.Time) error
	ReleaseRefund(ctx context.Context, id uint64, amount decimal.Decimal, now time.Time) error
	FindByID(ctx context.Context, id uint64) (*entity.Payment, error)
	FindByCallerRequestID(ctx context.Context, initiatedBy, requestID string) (*entity.Payment, error)
	FindByTransactionRef(ctx context.Context, gatewayID, transactionRef string) (*entity.Payment, error)
	FindActiveByOrderRef(ctx context.Context, orderRef string) (*entity.Payment, error)
	List(ctx context.Context, filter repository.PaymentFilter) ([]*entity.Payment, error)
	ListDueNotify(ctx context.Context, now time.Time, limit int32) ([]*entity.Payment, error)
	ListForReconcile(ctx context.Context, before time.Time, limit int32) ([]*entity.Payment, error)
}

// transactionLedger is append-and-read only; nothing in the service can
// rewrite a ledger row.
type transactionLedger interface {
	Append(ctx context.Context, txn *entity.Transaction) error
	ListByPayment(ctx context.Context, paymentID uint64) ([]*entity.Transaction, error)
	FindSucceededCharge(ctx context.Context, paymentID uint64, providerTxnID string) (*entity.Transaction, error)
	SumSucceededRefunds(ctx context.Context, paymentID uint64) (decimal.Decimal, error)
}

type refundRepository interface {
	Create(ctx context.Context, refund *entity.Refund) error
	Update(ctx context.Context, refund *entity.Refund) error
	FindByID(ctx context.Context, id string) (*entity.Refund, error)
	ListByPayment(ctx context.Context, paymentID uint64) ([]*entity.Refund, error)
	SumPending(ctx context.Context, paymentID uint64) (decimal.Decimal, error)
}

type gatewayCallbackRepository interface {
	Create(ctx context.Context, callback *entity.GatewayCallback) error
}

type orderService interface {
	Get(ctx context.Context, orderID string) (*client.Order, error)
	SetStatus(ctx context.Context, orderID, status string) error
}

type methodStore interface {
	Get(ctx context.Context, methodID string) (*client.PaymentMethod, error)
}

type PaymentService struct {
	paymentRepo  paymentRepository
	ledger       transactionLedger
	refundRepo   refundRepository
	callbackRepo gatewayCallbackRepository
	gatewayReg   *gateway.Registry
	orders       orderService
	methods      methodStore
	paymentsCfg  config.PaymentsConfig
	appAPIKey    string
	notifyHTTP   *http.Client
	locks        *keyedLocks
}

func NewPaymentService(
	paymentRepo paymentRepository,
	ledger transactionLedger,
	refundRepo refundRepository,
	callbackRepo gatewayCallbackRepository,
	gatewayReg *gateway.Registry,
	orders orderService,
	methods methodStore,
	paymentsCfg config.PaymentsConfig,
	appAPIKey string,
) *PaymentService {
	timeout := paymentsCfg.NotifyHTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &PaymentService{
		paymentRepo:  paymentRepo,
		ledger:       ledger,
		refundRepo:   refundRepo,
		callbackRepo: callbackRepo,
		gatewayReg:   gatewayReg,
		orders:       orders,
		methods:      methods,
		paymentsCfg:  paymentsCfg,
		appAPIKey:    strings.TrimSpace(appAPIKey),
		notifyHTTP:   &http.Client{Timeout: timeout},
		locks:        newKeyedLocks(),
	}
}

// InitiatePayment creates the payment row in pending, drives the gateway's
// initiate call and persists its result. A gateway rejection leaves a failed
// payment behind and surfaces the error; nothing retries implicitly.
func (s *PaymentService) InitiatePayment(ctx context.Context, req *types.InitiatePaymentRequest) (*entity.Payment, error) {
	requestID := strings.TrimSpace(req.RequestID)
	initiatedBy := strings.TrimSpace(req.InitiatedBy)
	if requestID == "" || initiatedBy == "" {
		return nil, ErrInvalidRequest
	}

	// Caller idempotency: replaying the same request returns the payment the
	// first attempt created.
	existing, err := s.paymentRepo.FindByCallerRequestID(ctx, initiatedBy, requestID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	order, err := s.orders.Get(ctx, strings.TrimSpace(req.OrderRef))
	if err != nil {
		if errors.Is(err, client.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	requestedBy := strings.TrimSpace(req.RequestedBy)
	if requestedBy == "" || order.OwnerRef != requestedBy {
		return nil, ErrUnauthorized
	}

	if err := money.ValidateAmount(order.Amount, order.Currency); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	method, err := s.methods.Get(ctx, strings.TrimSpace(req.MethodRef))
	if err != nil {
		if errors.Is(err, client.ErrMethodNotFound) {
			return nil, ErrMethodNotFound
		}
		return nil, err
	}

	gw, err := s.gatewayReg.Get(method.GatewayID)
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayNotFound) {
			return nil, ErrGatewayUnavailable
		}
		return nil, err
	}

	payment, err := s.createPendingPayment(ctx, req, order, method, gw.ID())
	if err != nil {
		if errors.Is(err, repository.ErrPaymentAlreadyExists) {
			winner, findErr := s.paymentRepo.FindByCallerRequestID(ctx, initiatedBy, requestID)
			if findErr != nil {
				return nil, findErr
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, err
	}

	output, err := gw.Initiate(ctx, &gateway.InitiateInput{
		TransactionRef: payment.TransactionRef,
		OrderRef:       payment.OrderRef,
		MethodRef:      payment.MethodRef,
		Amount:         payment.Amount,
		Currency:       payment.Currency,
		CustomerInfo:   method.CustomerInfo,
		Metadata:       payment.Metadata,
	})

	now := time.Now().UTC()
	if err != nil {
		reason := truncate(err.Error(), 1024)
		payment.FailureReason = &reason
		s.transition(payment, entity.PaymentFailed, now)
		if updateErr := s.paymentRepo.Update(ctx, payment); updateErr != nil {
			return nil, updateErr
		}
		metrics.PaymentsInitiated.WithLabelValues(gw.ID(), "rejected").Inc()
		return payment, fmt.Errorf("%w: %s", ErrGatewayRejected, reason)
	}

	payment.ProviderTxnID = output.ProviderTxnID
	payment.GatewayRef = output.GatewayRef
	payment.RedirectURL = output.RedirectURL
	payment.UpdatedAt = now
	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return nil, err
	}

	metrics.PaymentsInitiated.WithLabelValues(gw.ID(), "accepted").Inc()
	return payment, nil
}

func (s *PaymentService) createPendingPayment(
	ctx context.Context,
	req *types.InitiatePaymentRequest,
	order *client.Order,
	method *client.PaymentMethod,
	gatewayID string,
) (*entity.Payment, error) {
	unlock := s.locks.Lock("order:" + order.ID)
	defer unlock()

	active, err := s.paymentRepo.FindActiveByOrderRef(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrAlreadyPaid
	}

	now := time.Now().UTC()
	orderRef := order.ID
	payment := &entity.Payment{
		RequestID:      strings.TrimSpace(req.RequestID),
		InitiatedBy:    strings.TrimSpace(req.InitiatedBy),
		OrderRef:       order.ID,
		RequestedBy:    strings.TrimSpace(req.RequestedBy),
		MethodRef:      method.ID,
		GatewayID:      gatewayID,
		ActiveOrderRef: &orderRef,
		Amount:         money.Canonical(order.Amount, order.Currency),
		Currency:       strings.ToUpper(order.Currency),
		Status:         entity.PaymentPending,
		TransactionRef: uuid.NewString(),
		RefundedAmount: decimal.Zero,
		Metadata:       cloneMetadata(req.Metadata),
		NotifyURL:      strings.TrimSpace(req.NotifyURL),
		NotifyState:    entity.NotifyStateNone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrActivePaymentExists) {
			return nil, ErrAlreadyPaid
		}
		// Duplicate caller request id: an identical request won the insert
		// race after our idempotency lookup missed. The caller propagates the
		// winner's payment.
		return nil, err
	}

	return payment, nil
}

// ProcessPayment drives the gateway's process call for a pending or
// processing payment and appends exactly one charge ledger entry per terminal
// outcome. Completed and refunded payments are never re-processed; duplicate
// provider callbacks are deduplicated on provider transaction id.
func (s *PaymentService) ProcessPayment(ctx context.Context, paymentID uint64, callbackData map[string]string) (*entity.Payment, error) {
	unlock := s.locks.Lock("payment:" + strconv.FormatUint(paymentID, 10))
	defer unlock()

	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}

	switch payment.Status {
	case entity.PaymentCompleted, entity.PaymentRefunded:
		return payment, ErrAlreadyCompleted
	case entity.PaymentFailed:
		return payment, ErrPaymentTerminal
	}

	gw, err := s.gatewayReg.Get(payment.GatewayID)
	if err != nil {
		return nil, ErrGatewayUnavailable
	}

	input := &gateway.ProcessInput{
		TransactionRef: payment.TransactionRef,
		CallbackData:   callbackData,
	}
	if payment.ProviderTxnID != nil {
		input.ProviderTxnID = *payment.ProviderTxnID
	}

	now := time.Now().UTC()
	output, err := gw.Process(ctx, input)
	if err != nil {
		// The provider rejected or could not be reached; the failed attempt
		// is a ledger fact and the payment fails with the reported reason.
		reason := truncate(err.Error(), 1024)
		if appendErr := s.appendChargeTxn(ctx, payment, entity.TransactionFailed, payment.ProviderTxnID, &reason, now); appendErr != nil {
			return nil, appendErr
		}
		payment.FailureReason = &reason
		s.transition(payment, entity.PaymentFailed, now)
		if updateErr := s.paymentRepo.Update(ctx, payment); updateErr != nil {
			return nil, updateErr
		}
		metrics.PaymentsProcessed.WithLabelValues(gw.ID(), "failed").Inc()
		return payment, fmt.Errorf("%w: %s", ErrGatewayRejected, reason)
	}

	if output.ProviderTxnID != nil && strings.TrimSpace(*output.ProviderTxnID) != "" {
		payment.ProviderTxnID = output.ProviderTxnID
	}

	switch output.Outcome {
	case gateway.OutcomeSucceeded:
		return s.completePayment(ctx, payment, gw.ID(), output, now)
	case gateway.OutcomeFailed:
		reason := strings.TrimSpace(output.FailureReason)
		if reason == "" {
			reason = "payment failed"
		}
		reason = truncate(reason, 1024)
		if appendErr := s.appendChargeTxn(ctx, payment, entity.TransactionFailed, payment.ProviderTxnID, &reason, now); appendErr != nil {
			return nil, appendErr
		}
		payment.FailureReason = &reason
		s.transition(payment, entity.PaymentFailed, now)
		if updateErr := s.paymentRepo.Update(ctx, payment); updateErr != nil {
			return nil, updateErr
		}
		metrics.PaymentsProcessed.WithLabelValues(gw.ID(), "failed").Inc()
		return payment, fmt.Errorf("%w: %s", ErrGatewayRejected, reason)
	default:
		// Not a terminal outcome: no ledger entry, the payment stays in
		// flight and the caller polls or the provider calls back again.
		if payment.Status != entity.PaymentProcessing {
			payment.Status = entity.PaymentProcessing
		}
		payment.UpdatedAt = now
		if updateErr := s.paymentRepo.Update(ctx, payment); updateErr != nil {
			return nil, updateErr
		}
		return payment, nil
	}
}

func (s *PaymentService) completePayment(
	ctx context.Context,
	payment *entity.Payment,
	gatewayID string,
	output *gateway.ProcessOutput,
	now time.Time,
) (*entity.Payment, error) {
	// A succeeded charge already on the ledger for this provider transaction
	// with the payment still in flight means an earlier completion was
	// interrupted between the append and the status flip. The ledger row is
	// authoritative: skip the append and replay the transition so the payment
	// converges on completed instead of wedging in pending.
	charged := false
	if payment.ProviderTxnID != nil {
		existing, err := s.ledger.FindSucceededCharge(ctx, payment.ID, *payment.ProviderTxnID)
		if err != nil {
			return nil, err
		}
		charged = existing != nil
	}

	if !charged {
		var detail *string
		if resp := strings.TrimSpace(output.ProviderResponse); resp != "" {
			trimmed := truncate(resp, 4096)
			detail = &trimmed
		}
		if err := s.appendChargeTxn(ctx, payment, entity.TransactionSucceeded, payment.ProviderTxnID, detail, now); err != nil {
			return nil, err
		}
	}

	payment.FailureReason = nil
	processedAt := now
	payment.ProcessedAt = &processedAt
	s.transition(payment, entity.PaymentCompleted, now)
	if err := s.paymentRepo.Update(ctx, payment); err != nil {
		return nil, err
	}

	// The ledger and payment row are already authoritative; a failed order
	// update is logged by the caller and repaired by the notify pipeline.
	if err := s.orders.SetStatus(ctx, payment.OrderRef, client.OrderStatusConfirmed); err != nil {
		metrics.PaymentsProcessed.WithLabelValues(gatewayID, "succeeded_order_lagging").Inc()
	} else {
		metrics.PaymentsProcessed.WithLabelValues(gatewayID, "succeeded").Inc()
	}

	return payment, nil
}

func (s *PaymentService) appendChargeTxn(
	ctx context.Context,
	payment *entity.Payment,
	status entity.TransactionStatus,
	providerTxnID *string,
	detail *string,
	now time.Time,
) error {
	return s.ledger.Append(ctx, &entity.Transaction{
		PaymentID:     payment.ID,
		Type:          entity.TransactionCharge,
		Status:        status,
		Amount:        payment.Amount,
		Currency:      payment.Currency,
		ProviderTxnID: providerTxnID,
		Detail:        detail,
		ProcessedAt:   now,
	})
}

// HandleGatewayCallback resolves the payment addressed by a provider callback
// and feeds it through ProcessPayment. Every callback is persisted, accepted
// or not.
func (s *PaymentService) HandleGatewayCallback(ctx context.Context, req *types.GatewayCallbackRequest) (*entity.Payment, error) {
	gatewayID := strings.ToLower(strings.TrimSpace(req.GatewayID))
	if _, err := s.gatewayReg.Get(gatewayID); err != nil {
		return nil, ErrGatewayUnavailable
	}

	transactionRef := strings.TrimSpace(req.TransactionRef)
	payment, err := s.paymentRepo.FindByTransactionRef(ctx, gatewayID, transactionRef)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		s.persistCallback(ctx, nil, req, entity.GatewayCallbackRejected, "payment not found for transaction ref")
		return nil, ErrPaymentNotFound
	}

	callbackData := cloneMetadata(req.CallbackData)
	callbackData["amount"] = payment.Amount.String()
	callbackData["currency"] = payment.Currency

	processed, err := s.ProcessPayment(ctx, payment.ID, callbackData)
	if err != nil {
		if errors.Is(err, ErrGatewayRejected) || errors.Is(err, ErrAlreadyCompleted) {
			// The callback itself was valid; the outcome it carried is
			// already recorded on the payment and ledger.
			s.persistCallback(ctx, &payment.ID, req, entity.GatewayCallbackProcessed, "")
			return processed, err
		}
		s.persistCallback(ctx, &payment.ID, req, entity.GatewayCallbackRejected, err.Error())
		return nil, err
	}

	s.persistCallback(ctx, &payment.ID, req, entity.GatewayCallbackProcessed, "")
	return processed, nil
}

func (s *PaymentService) persistCallback(
	ctx context.Context,
	paymentID *uint64,
	req *types.GatewayCallbackRequest,
	status int32,
	reason string,
) {
	now := time.Now().UTC()
	var errPtr *string
	if reason = strings.TrimSpace(reason); reason != "" {
		trimmed := truncate(reason, 1024)
		errPtr = &trimmed
	}
	_ = s.callbackRepo.Create(ctx, &entity.GatewayCallback{
		PaymentID:      paymentID,
		GatewayID:      strings.ToLower(strings.TrimSpace(req.GatewayID)),
		TransactionRef: strings.TrimSpace(req.TransactionRef),
		Signature:      strings.TrimSpace(req.Signature),
		PayloadJSON:    req.Payload,
		Status:         status,
		Error:          errPtr,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

// PaymentStatusView is the read-only projection returned by GetPaymentStatus.
type PaymentStatusView struct {
	Payment     *entity.Payment
	OrderStatus string
}

func (s *PaymentService) GetPaymentStatus(ctx context.Context, id uint64) (*PaymentStatusView, error) {
	payment, err := s.paymentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}

	view := &PaymentStatusView{Payment: payment}
	if order, err := s.orders.Get(ctx, payment.OrderRef); err == nil {
		view.OrderStatus = order.Status
	}

	return view, nil
}

func (s *PaymentService) GetPayment(ctx context.Context, id uint64) (*entity.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, req *types.ListPaymentsRequest) ([]*entity.Payment, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	filter := repository.PaymentFilter{
		RequestID:   strings.TrimSpace(req.RequestID),
		InitiatedBy: strings.TrimSpace(req.InitiatedBy),
		OrderRef:    strings.TrimSpace(req.OrderRef),
		GatewayID:   strings.TrimSpace(req.GatewayID),
		HasStatus:   req.HasStatus,
		Status:      req.Status,
		Limit:       limit,
		Offset:      req.Offset,
	}

	return s.paymentRepo.List(ctx, filter)
}

// ListTransactions exposes the payment's ledger, oldest first.
func (s *PaymentService) ListTransactions(ctx context.Context, paymentID uint64) ([]*entity.Transaction, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return s.ledger.ListByPayment(ctx, paymentID)
}

// transition moves the payment to a new status, clearing the active order
// slot on terminal failure and queueing a caller notification on any
// terminal state.
func (s *PaymentService) transition(payment *entity.Payment, status entity.PaymentStatus, now time.Time) {
	payment.Status = status
	if status == entity.PaymentFailed {
		payment.ActiveOrderRef = nil
	}
	if status.Terminal() || status == entity.PaymentCompleted {
		s.markForNotify(payment, now)
	}
	payment.UpdatedAt = now
}

func (s *PaymentService) markForNotify(payment *entity.Payment, now time.Time) {
	if strings.TrimSpace(payment.NotifyURL) == "" {
		return
	}
	payment.NotifyState = entity.NotifyStatePending
	payment.NotifyAttempts = 0
	payment.NotifyNextAt = &now
	payment.NotifyLastErr = nil
}

func (s *PaymentService) batchSize() int32 {
	if s.paymentsCfg.JobBatchSize > 0 {
		return s.paymentsCfg.JobBatchSize
	}
	return defaultBatchSize
}

func cloneMetadata(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
