package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const MobipayID = "mobipay"

type MobipayConfig struct {
	BaseURL     string
	APIKey      string
	ShortCode   string
	HTTPTimeout time.Duration
}

// Mobipay drives a mobile-money provider: initiate pushes a payment prompt to
// the customer's handset; the provider reports the result with coded callbacks
// (result_code "0" is success).
type Mobipay struct {
	cfg    MobipayConfig
	client *http.Client
}

func NewMobipay(cfg MobipayConfig) *Mobipay {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Mobipay{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (g *Mobipay) ID() string {
	return MobipayID
}

func (g *Mobipay) Initiate(ctx context.Context, input *InitiateInput) (*InitiateOutput, error) {
	msisdn := strings.TrimSpace(input.CustomerInfo["msisdn"])
	if msisdn == "" {
		return nil, errors.New("mobipay requires a customer msisdn")
	}

	reqBody := map[string]interface{}{
		"short_code":  g.cfg.ShortCode,
		"msisdn":      msisdn,
		"amount":      input.Amount.String(),
		"currency":    input.Currency,
		"reference":   input.TransactionRef,
		"description": "order " + input.OrderRef,
	}

	body, err := g.postJSON(ctx, "/v2/push", reqBody)
	if err != nil {
		return nil, err
	}

	var payload struct {
		RequestID    string `json:"request_id"`
		ConversionID string `json:"conversation_id"`
		ResultCode   string `json:"result_code"`
		ResultDesc   string `json:"result_desc"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.ResultCode != "" && payload.ResultCode != "0" {
		desc := strings.TrimSpace(payload.ResultDesc)
		if desc == "" {
			desc = "push rejected"
		}
		return nil, fmt.Errorf("mobipay push rejected: code=%s %s", payload.ResultCode, desc)
	}

	result := &InitiateOutput{}
	if s := strings.TrimSpace(payload.RequestID); s != "" {
		result.ProviderTxnID = &s
	}
	if s := strings.TrimSpace(payload.ConversionID); s != "" {
		result.GatewayRef = &s
	}
	return result, nil
}

func (g *Mobipay) Process(ctx context.Context, input *ProcessInput) (*ProcessOutput, error) {
	if code, ok := input.CallbackData["result_code"]; ok {
		return g.processCallback(code, input.CallbackData)
	}
	return g.pollStatus(ctx, input.ProviderTxnID)
}

func (g *Mobipay) Refund(ctx context.Context, input *RefundInput) (*RefundOutput, error) {
	if strings.TrimSpace(input.ProviderTxnID) == "" {
		return nil, errors.New("mobipay reversal requires a provider transaction id")
	}

	body, err := g.postJSON(ctx, "/v2/reversal", map[string]interface{}{
		"short_code":     g.cfg.ShortCode,
		"transaction_id": input.ProviderTxnID,
		"amount":         input.Amount.String(),
		"currency":       input.Currency,
		"reference":      input.RefundID,
		"remarks":        strings.TrimSpace(input.Reason + " " + input.Notes),
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		ReversalID string `json:"reversal_id"`
		ResultCode string `json:"result_code"`
		ResultDesc string `json:"result_desc"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	result := &RefundOutput{}
	if s := strings.TrimSpace(payload.ReversalID); s != "" {
		result.ProviderRefundID = &s
	}
	if payload.ResultCode == "0" {
		result.Succeeded = true
	} else {
		result.FailureReason = strings.TrimSpace(payload.ResultDesc)
		if result.FailureReason == "" {
			result.FailureReason = "reversal rejected: code=" + payload.ResultCode
		}
	}
	return result, nil
}

func (g *Mobipay) processCallback(code string, data map[string]string) (*ProcessOutput, error) {
	result := &ProcessOutput{}
	if s := strings.TrimSpace(data["transaction_id"]); s != "" {
		result.ProviderTxnID = &s
	}
	if raw, err := json.Marshal(data); err == nil {
		result.ProviderResponse = string(raw)
	}

	switch code {
	case "0":
		result.Outcome = OutcomeSucceeded
	case "1032":
		result.Outcome = OutcomeFailed
		result.FailureReason = "canceled by customer"
	case "1037":
		result.Outcome = OutcomeFailed
		result.FailureReason = "customer unreachable"
	default:
		result.Outcome = OutcomeFailed
		result.FailureReason = strings.TrimSpace(data["result_desc"])
		if result.FailureReason == "" {
			result.FailureReason = "payment failed: code=" + code
		}
	}
	return result, nil
}

func (g *Mobipay) pollStatus(ctx context.Context, requestID string) (*ProcessOutput, error) {
	if strings.TrimSpace(requestID) == "" {
		return &ProcessOutput{Outcome: OutcomePending}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint("/v2/push/"+url.PathEscape(requestID)), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

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
		return nil, fmt.Errorf("mobipay status query failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var payload struct {
		Status        string `json:"status"`
		TransactionID string `json:"transaction_id"`
		ResultDesc    string `json:"result_desc"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	result := &ProcessOutput{ProviderResponse: string(body)}
	if s := strings.TrimSpace(payload.TransactionID); s != "" {
		result.ProviderTxnID = &s
	}
	switch strings.ToUpper(payload.Status) {
	case "SUCCESS":
		result.Outcome = OutcomeSucceeded
	case "FAILED", "CANCELED", "TIMEOUT":
		result.Outcome = OutcomeFailed
		result.FailureReason = strings.TrimSpace(payload.ResultDesc)
		if result.FailureReason == "" {
			result.FailureReason = "push " + strings.ToLower(payload.Status)
		}
	default:
		result.Outcome = OutcomePending
	}
	return result, nil
}

func (g *Mobipay) postJSON(ctx context.Context, path string, payload map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(path), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

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
		return nil, fmt.Errorf("mobipay request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	return body, nil
}

func (g *Mobipay) endpoint(path string) string {
	base := strings.TrimRight(g.cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.mobipay.example"
	}
	return base + path
}
