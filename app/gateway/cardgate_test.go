package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"type":"session.completed"}`)
	secret := "whsec_test"
	header := SignPayload(payload, secret, time.Now())

	if !verifySignature(payload, header, secret, 300) {
		t.Fatal("expected signature to validate")
	}
	if verifySignature(payload, header, "wrong-secret", 300) {
		t.Fatal("expected signature with wrong secret to fail")
	}
	if verifySignature([]byte(`{"tampered":true}`), header, secret, 300) {
		t.Fatal("expected signature over different payload to fail")
	}

	stale := SignPayload(payload, secret, time.Now().Add(-time.Hour))
	if verifySignature(payload, stale, secret, 300) {
		t.Fatal("expected stale signature to fail")
	}
}

func TestCardgateProcessCallbackOutcomes(t *testing.T) {
	g := NewCardgate(CardgateConfig{WebhookSecret: "whsec_test"})

	completed := []byte(`{"type":"session.completed","data":{"session_id":"cg_sess_1"}}`)
	out, err := g.Process(context.Background(), &ProcessInput{
		CallbackData: map[string]string{
			"payload":   string(completed),
			"signature": SignPayload(completed, "whsec_test", time.Now()),
		},
	})
	if err != nil {
		t.Fatalf("process callback failed: %v", err)
	}
	if out.Outcome != OutcomeSucceeded {
		t.Fatalf("expected succeeded outcome, got %s", out.Outcome)
	}
	if out.ProviderTxnID == nil || *out.ProviderTxnID != "cg_sess_1" {
		t.Fatal("expected session id from callback")
	}

	failed := []byte(`{"type":"session.failed","data":{"session_id":"cg_sess_1","failure_reason":"card_declined"}}`)
	out, err = g.Process(context.Background(), &ProcessInput{
		CallbackData: map[string]string{
			"payload":   string(failed),
			"signature": SignPayload(failed, "whsec_test", time.Now()),
		},
	})
	if err != nil {
		t.Fatalf("process failed callback errored: %v", err)
	}
	if out.Outcome != OutcomeFailed || out.FailureReason != "card_declined" {
		t.Fatalf("unexpected failed outcome: %+v", out)
	}

	other := []byte(`{"type":"session.created","data":{"session_id":"cg_sess_1"}}`)
	out, err = g.Process(context.Background(), &ProcessInput{
		CallbackData: map[string]string{
			"payload":   string(other),
			"signature": SignPayload(other, "whsec_test", time.Now()),
		},
	})
	if err != nil {
		t.Fatalf("process other callback errored: %v", err)
	}
	if out.Outcome != OutcomePending {
		t.Fatalf("expected pending outcome for unknown event, got %s", out.Outcome)
	}

	if _, err := g.Process(context.Background(), &ProcessInput{
		CallbackData: map[string]string{"payload": string(completed), "signature": "t=1,v1=ff"},
	}); err == nil {
		t.Fatal("expected invalid signature to be rejected")
	}
}

func TestCardgateInitiateSendsMinorUnits(t *testing.T) {
	var gotAmount, gotCurrency, gotReference string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form failed: %v", err)
		}
		gotAmount = r.PostForm.Get("amount")
		gotCurrency = r.PostForm.Get("currency")
		gotReference = r.PostForm.Get("reference")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":           "cg_sess_1",
			"charge_id":    "cg_ch_1",
			"checkout_url": "https://cardgate.example/pay/cg_sess_1",
			"status":       "open",
		})
	}))
	defer server.Close()

	g := NewCardgate(CardgateConfig{BaseURL: server.URL, SecretKey: "sk_test"})
	out, err := g.Initiate(context.Background(), &InitiateInput{
		TransactionRef: "txref-1",
		OrderRef:       "ord-1",
		Amount:         decimal.RequireFromString("100.00"),
		Currency:       "USD",
	})
	if err != nil {
		t.Fatalf("initiate failed: %v", err)
	}

	if gotAmount != "10000" || gotCurrency != "usd" || gotReference != "txref-1" {
		t.Fatalf("unexpected form values: amount=%s currency=%s reference=%s", gotAmount, gotCurrency, gotReference)
	}
	if out.ProviderTxnID == nil || *out.ProviderTxnID != "cg_sess_1" {
		t.Fatal("expected provider txn id from session")
	}
	if out.RedirectURL == nil || *out.RedirectURL != "https://cardgate.example/pay/cg_sess_1" {
		t.Fatal("expected checkout url")
	}
}

func TestCardgateInitiateDeclined(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cg_sess_2",
			"status":  "declined",
			"decline": map[string]string{"reason": "insufficient_funds"},
		})
	}))
	defer server.Close()

	g := NewCardgate(CardgateConfig{BaseURL: server.URL, SecretKey: "sk_test"})
	_, err := g.Initiate(context.Background(), &InitiateInput{
		TransactionRef: "txref-2",
		Amount:         decimal.RequireFromString("5.00"),
		Currency:       "USD",
	})
	if err == nil {
		t.Fatal("expected declined session to error")
	}
}

func TestCardgatePollSessionOutcomes(t *testing.T) {
	status := "paid"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}))
	defer server.Close()

	g := NewCardgate(CardgateConfig{BaseURL: server.URL, SecretKey: "sk_test"})

	out, err := g.Process(context.Background(), &ProcessInput{ProviderTxnID: "cg_sess_1"})
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if out.Outcome != OutcomeSucceeded {
		t.Fatalf("expected succeeded for paid session, got %s", out.Outcome)
	}

	status = "expired"
	out, err = g.Process(context.Background(), &ProcessInput{ProviderTxnID: "cg_sess_1"})
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if out.Outcome != OutcomeFailed {
		t.Fatalf("expected failed for expired session, got %s", out.Outcome)
	}

	status = "open"
	out, err = g.Process(context.Background(), &ProcessInput{ProviderTxnID: "cg_sess_1"})
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if out.Outcome != OutcomePending {
		t.Fatalf("expected pending for open session, got %s", out.Outcome)
	}
}

func TestCardgateRefundAcceptedStatuses(t *testing.T) {
	status := "pending"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "cg_rf_1", "status": status})
	}))
	defer server.Close()

	g := NewCardgate(CardgateConfig{BaseURL: server.URL, SecretKey: "sk_test"})
	out, err := g.Refund(context.Background(), &RefundInput{
		RefundID:      "rf-1",
		ProviderTxnID: "cg_sess_1",
		Amount:        decimal.RequireFromString("40.00"),
		Currency:      "USD",
		Reason:        "requested_by_customer",
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if !out.Succeeded {
		t.Fatal("expected accepted refund to count as succeeded")
	}

	status = "rejected"
	out, err = g.Refund(context.Background(), &RefundInput{
		RefundID:      "rf-2",
		ProviderTxnID: "cg_sess_1",
		Amount:        decimal.RequireFromString("40.00"),
		Currency:      "USD",
		Reason:        "requested_by_customer",
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if out.Succeeded || out.FailureReason == "" {
		t.Fatalf("expected rejected refund with reason, got %+v", out)
	}
}
