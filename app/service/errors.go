package service

import "errors"

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrUnauthorized       = errors.New("order does not belong to requester")
	ErrOrderNotFound      = errors.New("order not found")
	ErrMethodNotFound     = errors.New("payment method not found")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrRefundNotFound     = errors.New("refund not found")
	ErrAlreadyPaid        = errors.New("order already has an active payment")
	ErrAlreadyCompleted   = errors.New("payment already completed")
	ErrPaymentTerminal    = errors.New("payment is in a terminal state")
	ErrNotCompleted       = errors.New("payment is not completed")
	ErrExceedsBalance     = errors.New("refund exceeds refundable balance")
	ErrGatewayUnavailable = errors.New("no gateway registered for payment method")
	ErrGatewayRejected    = errors.New("gateway rejected the operation")
)
