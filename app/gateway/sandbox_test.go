package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestSandboxDeterministicOutcomes(t *testing.T) {
	g := NewSandbox()

	out, err := g.Process(context.Background(), &ProcessInput{
		ProviderTxnID: "sbx_1",
		CallbackData:  map[string]string{"amount": "100.00", "currency": "USD"},
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if out.Outcome != OutcomeSucceeded {
		t.Fatalf("expected succeeded, got %s", out.Outcome)
	}

	// Minor units ending in 99 decline.
	out, err = g.Process(context.Background(), &ProcessInput{
		CallbackData: map[string]string{"amount": "100.99", "currency": "USD"},
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if out.Outcome != OutcomeFailed || out.FailureReason != "card_declined" {
		t.Fatalf("expected card_declined, got %+v", out)
	}

	out, err = g.Process(context.Background(), &ProcessInput{
		CallbackData: map[string]string{"outcome": "pending"},
	})
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if out.Outcome != OutcomePending {
		t.Fatalf("expected forced pending, got %s", out.Outcome)
	}
}

func TestSandboxRefundOutcomes(t *testing.T) {
	g := NewSandbox()

	out, err := g.Refund(context.Background(), &RefundInput{
		Amount:   decimal.RequireFromString("40.00"),
		Currency: "USD",
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if !out.Succeeded || out.ProviderRefundID == nil || !strings.HasPrefix(*out.ProviderRefundID, "sbxrf_") {
		t.Fatalf("unexpected refund output: %+v", out)
	}

	out, err = g.Refund(context.Background(), &RefundInput{
		Amount:   decimal.RequireFromString("40.98"),
		Currency: "USD",
	})
	if err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if out.Succeeded || out.FailureReason != "refund_declined" {
		t.Fatalf("expected declined refund, got %+v", out)
	}
}

func TestRegistryLookup(t *testing.T) {
	registry := NewRegistry(NewSandbox())

	gw, err := registry.Get("sandbox")
	if err != nil {
		t.Fatalf("expected sandbox gateway, got %v", err)
	}
	if gw.ID() != SandboxID {
		t.Fatalf("unexpected gateway id: %s", gw.ID())
	}

	if _, err := registry.Get("unknown"); !errors.Is(err, ErrGatewayNotFound) {
		t.Fatalf("expected ErrGatewayNotFound, got %v", err)
	}
}
