package types

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/meridianmarket/ms-go-payments/app/entity"
)

func TestNewInitiatePaymentRequestFromContextUsesHeaderRequestID(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/payments", bytes.NewBufferString(`{"initiated_by":"checkout-service","requested_by":"cust-1","order_ref":" ord-1 ","method_ref":"pm-1","notify_url":"https://caller.example/status"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderXRequestID, "req-from-header")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	parsed, err := NewInitiatePaymentRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.RequestID != "req-from-header" {
		t.Fatalf("expected header request id, got %q", parsed.RequestID)
	}
	if parsed.OrderRef != "ord-1" {
		t.Fatalf("expected trimmed order ref, got %q", parsed.OrderRef)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestInitiatePaymentValidate(t *testing.T) {
	req := &InitiatePaymentRequest{}
	if err := req.Validate(); err == nil {
		t.Fatal("expected request_id validation error")
	}

	req = &InitiatePaymentRequest{
		RequestID:   "req-1",
		InitiatedBy: "checkout-service",
		RequestedBy: "cust-1",
		OrderRef:    "ord-1",
		MethodRef:   "pm-1",
		NotifyURL:   "ftp://caller.example/status",
	}
	if err := req.Validate(); err == nil {
		t.Fatal("expected notify_url validation error")
	}

	req.NotifyURL = "https://caller.example/status"
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid request, got %v", err)
	}
}

func TestNewListPaymentsRequestFromContextAndValidate(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/payments?status=completed&gateway=Sandbox&limit=20&offset=3", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	parsed, err := NewListPaymentsRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !parsed.HasStatus || parsed.Status != entity.PaymentCompleted {
		t.Fatalf("unexpected status parse: %+v", parsed)
	}
	if parsed.GatewayID != "sandbox" {
		t.Fatalf("expected lower-cased gateway, got %q", parsed.GatewayID)
	}
	if parsed.Limit != 20 || parsed.Offset != 3 {
		t.Fatalf("unexpected paging: limit=%d offset=%d", parsed.Limit, parsed.Offset)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid list request, got %v", err)
	}
}

func TestNewListPaymentsRequestRejectsUnknownStatus(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("GET", "/payments?status=archived", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	if _, err := NewListPaymentsRequestFromContext(ctx); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestRefundRequestValidate(t *testing.T) {
	req := &RefundRequest{PaymentID: 1, Amount: "10.00", Reason: "fraudulent", RequestedBy: "cust-1"}
	if err := req.Validate(); err != nil {
		t.Fatalf("expected valid refund request, got %v", err)
	}

	req.Reason = "buyer_remorse"
	if err := req.Validate(); err == nil {
		t.Fatal("expected reason validation error")
	}

	req.Reason = "other"
	req.Amount = ""
	if err := req.Validate(); err == nil {
		t.Fatal("expected amount validation error")
	}
}

func TestNewGatewayCallbackRequestFromContextFlattensPayload(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest("POST", "/webhooks/gateways/cardgate/txref-1", bytes.NewBufferString(`{"result_code":"0","amount":12.5,"final":true}`))
	req.Header.Set("X-Gateway-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("gateway", "ref")
	ctx.SetParamValues("Cardgate", "txref-1")

	parsed, err := NewGatewayCallbackRequestFromContext(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if parsed.GatewayID != "cardgate" {
		t.Fatalf("expected lower-cased gateway id, got %q", parsed.GatewayID)
	}
	if parsed.CallbackData["result_code"] != "0" {
		t.Fatalf("expected flattened string field, got %q", parsed.CallbackData["result_code"])
	}
	if parsed.CallbackData["amount"] != "12.5" {
		t.Fatalf("expected flattened number field, got %q", parsed.CallbackData["amount"])
	}
	if parsed.CallbackData["final"] != "true" {
		t.Fatalf("expected flattened bool field, got %q", parsed.CallbackData["final"])
	}
	if parsed.CallbackData["signature"] != "t=1,v1=abc" {
		t.Fatalf("expected signature pass-through, got %q", parsed.CallbackData["signature"])
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("expected valid callback request, got %v", err)
	}
}
