package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMobipayInitiatePushesPrompt(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode push request failed: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"request_id":      "mp_req_1",
			"conversation_id": "mp_conv_1",
			"result_code":     "0",
		})
	}))
	defer server.Close()

	g := NewMobipay(MobipayConfig{BaseURL: server.URL, APIKey: "key", ShortCode: "55123"})
	out, err := g.Initiate(context.Background(), &InitiateInput{
		TransactionRef: "txref-1",
		OrderRef:       "ord-1",
		Amount:         decimal.RequireFromString("100.00"),
		Currency:       "USD",
		CustomerInfo:   map[string]string{"msisdn": "254700000001"},
	})
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	if got["msisdn"] != "254700000001" || got["short_code"] != "55123" || got["reference"] != "txref-1" {
		t.Fatalf("unexpected push request: %+v", got)
	}
	if out.ProviderTxnID == nil || *out.ProviderTxnID != "mp_req_1" {
		t.Fatal("expected provider txn id from push response")
	}
}

func TestMobipayInitiateRequiresMsisdn(t *testing.T) {
	g := NewMobipay(MobipayConfig{})
	if _, err := g.Initiate(context.Background(), &InitiateInput{
		TransactionRef: "txref-1",
		Amount:         decimal.RequireFromString("10.00"),
		Currency:       "USD",
	}); err == nil {
		t.Fatal("expected initiate without msisdn to fail")
	}
}

func TestMobipayProcessCallbackCodes(t *testing.T) {
	g := NewMobipay(MobipayConfig{})

	out, err := g.Process(context.Background(), &ProcessInput{
		CallbackData: map[string]string{"result_code": "0", "transaction_id": "mp_txn_1"},
	})
	if err != nil {
		t.Fatalf("process callback failed: %v", err)
	}
	if out.Outcome != OutcomeSucceeded {
		t.Fatalf("expected succeeded outcome for code 0, got %s", out.Outcome)
	}
	if out.ProviderTxnID == nil || *out.ProviderTxnID != "mp_txn_1" {
		t.Fatal("expected transaction id from callback")
	}

	out, err = g.Process(context.Background(), &ProcessInput{
		CallbackData: map[string]string{"result_code": "1032"},
	})
	if err != nil {
		t.Fatalf("process canceled callback errored: %v", err)
	}
	if out.Outcome != OutcomeFailed || out.FailureReason != "canceled by customer" {
		t.Fatalf("unexpected canceled outcome: %+v", out)
	}
}

func TestMobipayPollStatusOutcomes(t *testing.T) {
	status := "SUCCESS"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":         status,
			"transaction_id": "mp_txn_1",
		})
	}))
	defer server.Close()

	g := NewMobipay(MobipayConfig{BaseURL: server.URL, APIKey: "key"})

	out, err := g.Process(context.Background(), &ProcessInput{ProviderTxnID: "mp_req_1"})
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if out.Outcome != OutcomeSucceeded {
		t.Fatalf("expected succeeded for SUCCESS, got %s", out.Outcome)
	}

	status = "TIMEOUT"
	out, err = g.Process(context.Background(), &ProcessInput{ProviderTxnID: "mp_req_1"})
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if out.Outcome != OutcomeFailed {
		t.Fatalf("expected failed for TIMEOUT, got %s", out.Outcome)
	}

	status = "PROCESSING"
	out, err = g.Process(context.Background(), &ProcessInput{ProviderTxnID: "mp_req_1"})
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if out.Outcome != OutcomePending {
		t.Fatalf("expected pending for PROCESSING, got %s", out.Outcome)
	}

	// No provider request id yet: nothing to poll, stay pending.
	out, err = g.Process(context.Background(), &ProcessInput{})
	if err != nil {
		t.Fatalf("poll without request id failed: %v", err)
	}
	if out.Outcome != OutcomePending {
		t.Fatalf("expected pending without request id, got %s", out.Outcome)
	}
}

func TestMobipayRefundReversal(t *testing.T) {
	resultCode := "0"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"reversal_id": "mp_rev_1",
			"result_code": resultCode,
			"result_desc": "reversal not permitted",
		})
	}))
	defer server.Close()

	g := NewMobipay(MobipayConfig{BaseURL: server.URL, APIKey: "key", ShortCode: "55123"})

	out, err := g.Refund(context.Background(), &RefundInput{
		RefundID:      "rf-1",
		ProviderTxnID: "mp_txn_1",
		Amount:        decimal.RequireFromString("40.00"),
		Currency:      "USD",
		Reason:        "requested_by_customer",
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if !out.Succeeded {
		t.Fatal("expected reversal with code 0 to succeed")
	}
	if out.ProviderRefundID == nil || *out.ProviderRefundID != "mp_rev_1" {
		t.Fatal("expected reversal id from response")
	}

	resultCode = "21"
	out, err = g.Refund(context.Background(), &RefundInput{
		RefundID:      "rf-2",
		ProviderTxnID: "mp_txn_1",
		Amount:        decimal.RequireFromString("40.00"),
		Currency:      "USD",
		Reason:        "requested_by_customer",
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if out.Succeeded || out.FailureReason != "reversal not permitted" {
		t.Fatalf("expected rejected reversal with reason, got %+v", out)
	}

	if _, err := g.Refund(context.Background(), &RefundInput{RefundID: "rf-3"}); err == nil {
		t.Fatal("expected reversal without transaction id to fail")
	}
}
