package types

type Payment struct {
	ID             uint64            `json:"id"`
	RequestID      string            `json:"request_id"`
	InitiatedBy    string            `json:"initiated_by"`
	OrderRef       string            `json:"order_ref"`
	RequestedBy    string            `json:"requested_by"`
	MethodRef      string            `json:"method_ref"`
	Gateway        string            `json:"gateway"`
	Amount         string            `json:"amount"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	TransactionRef string            `json:"transaction_ref"`
	ProviderTxnID  string            `json:"provider_txn_id,omitempty"`
	RedirectURL    string            `json:"redirect_url,omitempty"`
	FailureReason  string            `json:"failure_reason,omitempty"`
	RefundedAmount string            `json:"refunded_amount"`
	Metadata       map[string]string `json:"metadata"`
	CreatedAt      string            `json:"created_at"`
	ProcessedAt    string            `json:"processed_at,omitempty"`
	UpdatedAt      string            `json:"updated_at"`
}

type PaymentEnvelopeResponse struct {
	Payment *Payment `json:"payment"`
}

type RefundEnvelopeResponse struct {
	Refund *Refund `json:"refund"`
}

type PaymentStatusResponse struct {
	Payment     *Payment `json:"payment"`
	OrderStatus string   `json:"order_status,omitempty"`
}

type ListPaymentsResponse struct {
	Payments []*Payment `json:"payments"`
}

type Transaction struct {
	ID            uint64 `json:"id"`
	PaymentID     uint64 `json:"payment_id"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	ProviderTxnID string `json:"provider_txn_id,omitempty"`
	Detail        string `json:"detail,omitempty"`
	ProcessedAt   string `json:"processed_at"`
}

type ListTransactionsResponse struct {
	Transactions []*Transaction `json:"transactions"`
}

type Refund struct {
	ID               string `json:"id"`
	PaymentID        uint64 `json:"payment_id"`
	OrderRef         string `json:"order_ref"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Reason           string `json:"reason"`
	Notes            string `json:"notes,omitempty"`
	Status           string `json:"status"`
	RequestedBy      string `json:"requested_by"`
	ProviderRefundID string `json:"provider_refund_id,omitempty"`
	FailureReason    string `json:"failure_reason,omitempty"`
	CreatedAt        string `json:"created_at"`
	ProcessedAt      string `json:"processed_at,omitempty"`
	UpdatedAt        string `json:"updated_at"`
}

type ListRefundsResponse struct {
	Refunds []*Refund `json:"refunds"`
}

// PaymentNotification is the envelope POSTed to a payment's notify URL when
// the payment reaches completed, failed, or refunded.
type PaymentNotification struct {
	Event   string   `json:"event"`
	Payment *Payment `json:"payment"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
