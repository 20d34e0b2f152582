package client

import (
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

var ErrMethodNotFound = errors.New("payment method not found")

type PaymentMethod struct {
	ID           string            `json:"id"`
	OwnerRef     string            `json:"owner_ref"`
	GatewayID    string            `json:"gateway_id"`
	CustomerInfo map[string]string `json:"customer_info"`
}

type MethodsClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewMethodsClient(baseURL, apiKey string, timeout time.Duration) *MethodsClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MethodsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *MethodsClient) Get(ctx context.Context, methodID string) (*PaymentMethod, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/payment-methods/"+url.PathEscape(methodID), nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrMethodNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("payment method store get failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var method PaymentMethod
	if err := json.Unmarshal(body, &method); err != nil {
		return nil, err
	}
	if method.CustomerInfo == nil {
		method.CustomerInfo = map[string]string{}
	}
	return &method, nil
}
