package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meridianmarket/ms-go-payments/app/entity"
	"github.com/meridianmarket/ms-go-payments/app/mapper"
	"github.com/meridianmarket/ms-go-payments/app/metrics"
)

// RunNotifyDispatchBatch delivers queued caller notifications. Returns the
// number of payments picked up; delivery failures are recorded on the payment
// for retry and do not abort the batch.
func (s *PaymentService) RunNotifyDispatchBatch(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	due, err := s.paymentRepo.ListDueNotify(ctx, now, s.batchSize())
	if err != nil {
		return 0, err
	}

	for _, payment := range due {
		if err := s.dispatchNotification(ctx, payment); err != nil {
			s.recordNotifyFailure(ctx, payment, err)
			metrics.NotifyDeliveries.WithLabelValues("failed").Inc()
			continue
		}
		payment.NotifyState = entity.NotifyStateSuccess
		payment.NotifyAttempts++
		payment.NotifyNextAt = nil
		payment.NotifyLastErr = nil
		payment.UpdatedAt = time.Now().UTC()
		if err := s.paymentRepo.Update(ctx, payment); err != nil {
			return len(due), err
		}
		metrics.NotifyDeliveries.WithLabelValues("delivered").Inc()
	}

	return len(due), nil
}

func (s *PaymentService) dispatchNotification(ctx context.Context, payment *entity.Payment) error {
	body, err := json.Marshal(mapper.PaymentToNotification(payment))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, payment.NotifyURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.appAPIKey != "" {
		req.Header.Set("X-API-Key", s.appAPIKey)
	}

	resp, err := s.notifyHTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (s *PaymentService) recordNotifyFailure(ctx context.Context, payment *entity.Payment, cause error) {
	now := time.Now().UTC()
	payment.NotifyAttempts++
	lastErr := truncate(cause.Error(), 1024)
	payment.NotifyLastErr = &lastErr

	maxAttempts := s.paymentsCfg.NotifyMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if payment.NotifyAttempts >= maxAttempts {
		payment.NotifyState = entity.NotifyStateFailed
		payment.NotifyNextAt = nil
	} else {
		interval := s.paymentsCfg.NotifyRetryInterval
		if interval <= 0 {
			interval = time.Minute
		}
		// Linear backoff: attempt n retries after n intervals.
		next := now.Add(time.Duration(payment.NotifyAttempts) * interval)
		payment.NotifyNextAt = &next
	}

	payment.UpdatedAt = now
	_ = s.paymentRepo.Update(ctx, payment)
}

// RunReconcileBatch polls the gateway for payments stuck in pending or
// processing longer than the configured cutoff. Payments the provider still
// reports in flight are left untouched.
func (s *PaymentService) RunReconcileBatch(ctx context.Context) (int, error) {
	staleAfter := s.paymentsCfg.ReconcileStaleAfter
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	before := time.Now().UTC().Add(-staleAfter)

	stale, err := s.paymentRepo.ListForReconcile(ctx, before, s.batchSize())
	if err != nil {
		return 0, err
	}

	var firstErr error
	for _, payment := range stale {
		_, err := s.ProcessPayment(ctx, payment.ID, nil)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrAlreadyCompleted) || errors.Is(err, ErrPaymentTerminal) {
			continue
		}
		if errors.Is(err, ErrGatewayRejected) {
			// The poll resolved the payment to failed; that is a successful
			// reconcile.
			continue
		}
		if firstErr == nil {
			firstErr = fmt.Errorf("reconcile payment %d: %w", payment.ID, err)
		}
	}

	return len(stale), firstErr
}

// Healthy reports whether the gateway registry is populated; the HTTP layer
// uses it for the readiness probe.
func (s *PaymentService) Healthy() error {
	if len(s.gatewayReg.IDs()) == 0 {
		return errors.New("no gateways registered")
	}
	if strings.TrimSpace(s.appAPIKey) == "" {
		return errors.New("api key not configured")
	}
	return nil
}
