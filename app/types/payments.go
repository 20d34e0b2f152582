package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/meridianmarket/ms-go-payments/app/entity"
)

type InitiatePaymentRequest struct {
	RequestID   string            `json:"request_id"`
	InitiatedBy string            `json:"initiated_by"`
	RequestedBy string            `json:"requested_by"`
	OrderRef    string            `json:"order_ref"`
	MethodRef   string            `json:"method_ref"`
	NotifyURL   string            `json:"notify_url"`
	Metadata    map[string]string `json:"metadata"`
}

func NewInitiatePaymentRequestFromContext(ctx echo.Context) (*InitiatePaymentRequest, error) {
	var body InitiatePaymentRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.RequestID = strings.TrimSpace(body.RequestID)
	if body.RequestID == "" {
		body.RequestID = strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
	}
	body.InitiatedBy = strings.TrimSpace(body.InitiatedBy)
	body.RequestedBy = strings.TrimSpace(body.RequestedBy)
	body.OrderRef = strings.TrimSpace(body.OrderRef)
	body.MethodRef = strings.TrimSpace(body.MethodRef)
	body.NotifyURL = strings.TrimSpace(body.NotifyURL)

	return &body, nil
}

func (r *InitiatePaymentRequest) Validate() error {
	if strings.TrimSpace(r.RequestID) == "" {
		return errors.New("request_id is required")
	}
	if strings.TrimSpace(r.InitiatedBy) == "" {
		return errors.New("initiated_by is required")
	}
	if strings.TrimSpace(r.RequestedBy) == "" {
		return errors.New("requested_by is required")
	}
	if strings.TrimSpace(r.OrderRef) == "" {
		return errors.New("order_ref is required")
	}
	if strings.TrimSpace(r.MethodRef) == "" {
		return errors.New("method_ref is required")
	}
	if url := strings.TrimSpace(r.NotifyURL); url != "" {
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			return errors.New("notify_url must be an http(s) URL")
		}
	}
	return nil
}

type ProcessPaymentRequest struct {
	ID           uint64            `json:"-"`
	CallbackData map[string]string `json:"callback_data"`
}

func NewProcessPaymentRequestFromContext(ctx echo.Context) (*ProcessPaymentRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}

	var body ProcessPaymentRequest
	if err = ctx.Bind(&body); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	body.ID = id

	return &body, nil
}

func (r *ProcessPaymentRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("invalid payment id")
	}
	return nil
}

type GetPaymentRequest struct {
	ID uint64
}

func NewGetPaymentRequestFromContext(ctx echo.Context) (*GetPaymentRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &GetPaymentRequest{ID: id}, nil
}

func (r *GetPaymentRequest) Validate() error {
	if r.ID == 0 {
		return errors.New("invalid payment id")
	}
	return nil
}

type ListPaymentsRequest struct {
	RequestID   string
	InitiatedBy string
	OrderRef    string
	GatewayID   string
	HasStatus   bool
	Status      entity.PaymentStatus
	Limit       int32
	Offset      int32
}

func NewListPaymentsRequestFromContext(ctx echo.Context) (*ListPaymentsRequest, error) {
	req := &ListPaymentsRequest{
		RequestID:   strings.TrimSpace(ctx.QueryParam("request_id")),
		InitiatedBy: strings.TrimSpace(ctx.QueryParam("initiated_by")),
		OrderRef:    strings.TrimSpace(ctx.QueryParam("order_ref")),
		GatewayID:   strings.ToLower(strings.TrimSpace(ctx.QueryParam("gateway"))),
		Limit:       100,
		Offset:      0,
	}

	if statusRaw := strings.ToLower(strings.TrimSpace(ctx.QueryParam("status"))); statusRaw != "" {
		status := entity.PaymentStatus(statusRaw)
		if !entity.ValidPaymentStatus(status) {
			return nil, fmt.Errorf("invalid status %q", statusRaw)
		}
		req.HasStatus = true
		req.Status = status
	}

	if limitRaw := strings.TrimSpace(ctx.QueryParam("limit")); limitRaw != "" {
		limit, err := strconv.ParseInt(limitRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Limit = int32(limit)
	}

	if offsetRaw := strings.TrimSpace(ctx.QueryParam("offset")); offsetRaw != "" {
		offset, err := strconv.ParseInt(offsetRaw, 10, 32)
		if err != nil {
			return nil, err
		}
		req.Offset = int32(offset)
	}

	return req, nil
}

func (r *ListPaymentsRequest) Validate() error {
	if r.Limit == 0 {
		r.Limit = 100
	}
	if r.Limit <= 0 || r.Limit > 500 {
		return errors.New("limit must be between 1 and 500")
	}
	if r.Offset < 0 {
		return errors.New("offset must be >= 0")
	}
	return nil
}

type RefundRequest struct {
	PaymentID   uint64 `json:"-"`
	Amount      string `json:"amount"`
	Reason      string `json:"reason"`
	Notes       string `json:"notes"`
	RequestedBy string `json:"requested_by"`
}

func NewRefundRequestFromContext(ctx echo.Context) (*RefundRequest, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}

	var body RefundRequest
	if err = ctx.Bind(&body); err != nil {
		return nil, err
	}
	body.PaymentID = id
	body.Amount = strings.TrimSpace(body.Amount)
	body.Reason = strings.ToLower(strings.TrimSpace(body.Reason))
	body.Notes = strings.TrimSpace(body.Notes)
	body.RequestedBy = strings.TrimSpace(body.RequestedBy)

	return &body, nil
}

func (r *RefundRequest) Validate() error {
	if r.PaymentID == 0 {
		return errors.New("invalid payment id")
	}
	if strings.TrimSpace(r.Amount) == "" {
		return errors.New("amount is required")
	}
	if !entity.ValidRefundReason(entity.RefundReason(r.Reason)) {
		return errors.New("reason must be one of requested_by_customer, duplicate, fraudulent, order_canceled, other")
	}
	if strings.TrimSpace(r.RequestedBy) == "" {
		return errors.New("requested_by is required")
	}
	return nil
}

type GetRefundRequest struct {
	PaymentID uint64
	RefundID  string
}

func NewGetRefundRequestFromContext(ctx echo.Context) (*GetRefundRequest, error) {
	paymentID, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		return nil, err
	}
	return &GetRefundRequest{
		PaymentID: paymentID,
		RefundID:  strings.TrimSpace(ctx.Param("refundId")),
	}, nil
}

func (r *GetRefundRequest) Validate() error {
	if r.PaymentID == 0 {
		return errors.New("invalid payment id")
	}
	if r.RefundID == "" {
		return errors.New("invalid refund id")
	}
	return nil
}

type GatewayCallbackRequest struct {
	GatewayID      string
	TransactionRef string
	Signature      string
	Payload        string
	CallbackData   map[string]string
}

func NewGatewayCallbackRequestFromContext(ctx echo.Context) (*GatewayCallbackRequest, error) {
	gatewayID := strings.ToLower(strings.TrimSpace(ctx.Param("gateway")))
	transactionRef := strings.TrimSpace(ctx.Param("ref"))

	signature := strings.TrimSpace(ctx.Request().Header.Get("X-Gateway-Signature"))
	if signature == "" {
		signature = strings.TrimSpace(ctx.Request().Header.Get("X-Webhook-Signature"))
	}

	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	req := &GatewayCallbackRequest{
		GatewayID:      gatewayID,
		TransactionRef: transactionRef,
		Signature:      signature,
		Payload:        string(rawBody),
		CallbackData: map[string]string{
			"payload":   string(rawBody),
			"signature": signature,
		},
	}

	// Top-level scalar payload fields are passed through so gateways that
	// read individual callback fields see them directly.
	var fields map[string]any
	if len(rawBody) > 0 && json.Unmarshal(rawBody, &fields) == nil {
		for key, value := range fields {
			switch v := value.(type) {
			case string:
				req.CallbackData[key] = v
			case float64:
				req.CallbackData[key] = strconv.FormatFloat(v, 'f', -1, 64)
			case bool:
				req.CallbackData[key] = strconv.FormatBool(v)
			}
		}
	}

	return req, nil
}

func (r *GatewayCallbackRequest) Validate() error {
	if strings.TrimSpace(r.GatewayID) == "" {
		return errors.New("gateway is required")
	}
	if strings.TrimSpace(r.TransactionRef) == "" {
		return errors.New("transaction ref is required")
	}
	if strings.TrimSpace(r.Payload) == "" {
		return errors.New("payload is required")
	}
	return nil
}
