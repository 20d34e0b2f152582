package entity

import "time"

const (
	GatewayCallbackProcessed int32 = 10
	GatewayCallbackRejected  int32 = 20
)

// GatewayCallback is the raw record of one incoming provider callback,
// kept for audit whether or not it was accepted.
type GatewayCallback struct {
	ID uint64

	PaymentID *uint64

	GatewayID      string
	TransactionRef string
	Signature      string
	PayloadJSON    string
	Status         int32
	Error          *string

	CreatedAt time.Time
	UpdatedAt time.Time
}
