package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianmarket/ms-go-payments/app/money"
)

const CardgateID = "cardgate"

type CardgateConfig struct {
	BaseURL                   string
	SecretKey                 string
	WebhookSecret             string
	ReturnBaseURL             string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

// Cardgate drives a hosted-card provider: initiate creates a hosted checkout
// session the customer is redirected to, and the provider reports the result
// through an HMAC-signed callback.
type Cardgate struct {
	cfg    CardgateConfig
	client *http.Client
}

func NewCardgate(cfg CardgateConfig) *Cardgate {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if cfg.SignatureToleranceSeconds <= 0 {
		cfg.SignatureToleranceSeconds = 300
	}

	return &Cardgate{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *Cardgate) ID() string {
	return CardgateID
}

func (g *Cardgate) Initiate(ctx context.Context, input *InitiateInput) (*InitiateOutput, error) {
	if strings.TrimSpace(g.cfg.SecretKey) == "" {
		return nil, errors.New("cardgate secret key is not configured")
	}

	values := url.Values{}
	values.Set("amount", strconv.FormatInt(minorUnits(input.Amount, input.Currency), 10))
	values.Set("currency", strings.ToLower(input.Currency))
	values.Set("reference", input.TransactionRef)
	values.Set("description", "order "+input.OrderRef)
	if email := strings.TrimSpace(input.CustomerInfo["email"]); email != "" {
		values.Set("customer[email]", email)
	}
	if token := strings.TrimSpace(input.CustomerInfo["card_token"]); token != "" {
		values.Set("card_token", token)
	}
	for k, v := range input.Metadata {
		values.Set("metadata["+k+"]", v)
	}
	values.Set("metadata[order_ref]", input.OrderRef)
	if base := strings.TrimSpace(g.cfg.ReturnBaseURL); base != "" {
		values.Set("return_url", strings.TrimRight(base, "/")+"/"+input.TransactionRef)
	}

	body, err := g.postForm(ctx, "/v1/sessions", values)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID          string `json:"id"`
		ChargeID    string `json:"charge_id"`
		CheckoutURL string `json:"checkout_url"`
		Status      string `json:"status"`
		Decline     struct {
			Reason string `json:"reason"`
		} `json:"decline"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.Status == "declined" {
		reason := strings.TrimSpace(payload.Decline.Reason)
		if reason == "" {
			reason = "declined by provider"
		}
		return nil, fmt.Errorf("cardgate declined session: %s", reason)
	}

	result := &InitiateOutput{}
	if s := strings.TrimSpace(payload.ID); s != "" {
		result.ProviderTxnID = &s
	}
	if s := strings.TrimSpace(payload.ChargeID); s != "" {
		result.GatewayRef = &s
	}
	if s := strings.TrimSpace(payload.CheckoutURL); s != "" {
		result.RedirectURL = &s
	}

	return result, nil
}

func (g *Cardgate) Process(ctx context.Context, input *ProcessInput) (*ProcessOutput, error) {
	if payload, ok := input.CallbackData["payload"]; ok {
		return g.processCallback([]byte(payload), input.CallbackData["signature"])
	}
	return g.pollSession(ctx, input.ProviderTxnID)
}

func (g *Cardgate) Refund(ctx context.Context, input *RefundInput) (*RefundOutput, error) {
	if strings.TrimSpace(input.ProviderTxnID) == "" {
		return nil, errors.New("cardgate refund requires a provider transaction id")
	}

	values := url.Values{}
	values.Set("amount", strconv.FormatInt(minorUnits(input.Amount, input.Currency), 10))
	values.Set("currency", strings.ToLower(input.Currency))
	values.Set("reason", input.Reason)
	if notes := strings.TrimSpace(input.Notes); notes != "" {
		values.Set("metadata[notes]", notes)
	}
	values.Set("metadata[refund_id]", input.RefundID)

	body, err := g.postForm(ctx, "/v1/sessions/"+url.PathEscape(input.ProviderTxnID)+"/refunds", values)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Failure string `json:"failure_reason"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	result := &RefundOutput{}
	if s := strings.TrimSpace(payload.ID); s != "" {
		result.ProviderRefundID = &s
	}
	switch payload.Status {
	case "succeeded", "pending":
		// cardgate settles refunds asynchronously but never reverses an
		// accepted one, so an accepted refund is treated as succeeded.
		result.Succeeded = true
	default:
		result.FailureReason = strings.TrimSpace(payload.Failure)
		if result.FailureReason == "" {
			result.FailureReason = "refund rejected by provider"
		}
	}

	return result, nil
}

func (g *Cardgate) processCallback(payload []byte, signature string) (*ProcessOutput, error) {
	if strings.TrimSpace(g.cfg.WebhookSecret) == "" {
		return nil, errors.New("cardgate webhook secret is not configured")
	}
	if !verifySignature(payload, signature, g.cfg.WebhookSecret, g.cfg.SignatureToleranceSeconds) {
		return nil, errors.New("invalid cardgate signature")
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			SessionID string `json:"session_id"`
			Outcome   string `json:"outcome"`
			Failure   string `json:"failure_reason"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}

	result := &ProcessOutput{ProviderResponse: string(payload)}
	if s := strings.TrimSpace(event.Data.SessionID); s != "" {
		result.ProviderTxnID = &s
	}

	switch event.Type {
	case "session.completed":
		result.Outcome = OutcomeSucceeded
	case "session.failed":
		result.Outcome = OutcomeFailed
		result.FailureReason = strings.TrimSpace(event.Data.Failure)
		if result.FailureReason == "" {
			result.FailureReason = "payment failed"
		}
	default:
		result.Outcome = OutcomePending
	}

	return result, nil
}

func (g *Cardgate) pollSession(ctx context.Context, sessionID string) (*ProcessOutput, error) {
	if strings.TrimSpace(sessionID) == "" {
		return &ProcessOutput{Outcome: OutcomePending}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint("/v1/sessions/"+url.PathEscape(sessionID)), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("cardgate get session failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var payload struct {
		Status  string `json:"status"`
		Failure string `json:"failure_reason"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	result := &ProcessOutput{ProviderResponse: string(body)}
	switch payload.Status {
	case "paid":
		result.Outcome = OutcomeSucceeded
	case "failed", "expired":
		result.Outcome = OutcomeFailed
		result.FailureReason = strings.TrimSpace(payload.Failure)
		if result.FailureReason == "" {
			result.FailureReason = "session " + payload.Status
		}
	default:
		result.Outcome = OutcomePending
	}

	return result, nil
}

func (g *Cardgate) postForm(ctx context.Context, path string, values url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(path), strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("cardgate request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	return body, nil
}

func (g *Cardgate) endpoint(path string) string {
	base := strings.TrimRight(g.cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.cardgate.example"
	}
	return base + path
}

// verifySignature checks a "t=<unix>,v1=<hex hmac>" header against the
// payload, rejecting timestamps outside the tolerance window.
func verifySignature(payload []byte, header, secret string, toleranceSeconds int64) bool {
	var ts int64
	candidates := make([][]byte, 0, 1)

	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return false
			}
			ts = parsed
		case "v1":
			decoded, err := hex.DecodeString(kv[1])
			if err != nil {
				continue
			}
			candidates = append(candidates, decoded)
		}
	}

	if ts == 0 || len(candidates) == 0 {
		return false
	}
	age := time.Now().Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > toleranceSeconds {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10) + "." + string(payload)))
	expected := mac.Sum(nil)

	for _, candidate := range candidates {
		if hmac.Equal(candidate, expected) {
			return true
		}
	}
	return false
}

// SignPayload builds a callback signature header; used by the sandbox tooling
// and tests to emit callbacks the verifier accepts.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10) + "." + string(payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func minorUnits(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(money.Exponent(currency)).IntPart()
}
