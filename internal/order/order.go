package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/liftmode/netcents-gateway/internal/payment"
)

// State is the order lifecycle state.
type State string

const (
	StatePendingPayment State = "pending_payment"
	StateProcessing     State = "processing"
	StateOnHold         State = "on_hold"
	StateComplete       State = "complete"
	StateCanceled       State = "canceled"
)

// PaymentStatus tracks settlement independently of the order state.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// NotePaymentReceived is the history comment written when a pending
// payment is confirmed.
const NotePaymentReceived = "We received your payment, thank you!"

// HoldReasonNoTransaction is the history comment written when the
// sweep finds no settled transaction for an order.
const HoldReasonNoTransaction = "no transaction found, manual invoice required"

// Order is the slice of an order the payment flow and the
// reconciliation sweep operate on.
type Order struct {
	ID            uuid.UUID
	IncrementID   string
	State         State
	Status        string
	PaymentStatus PaymentStatus
	PaymentMethod string
	CustomerEmail string
	CurrencyCode  string
	GrandTotal    decimal.Decimal
	Payment       payment.Record
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CanShip reports whether the order may advance to processing. Held,
// canceled and completed orders never do.
func (o *Order) CanShip() bool {
	switch o.State {
	case StatePendingPayment, StateProcessing:
		return true
	default:
		return false
	}
}
