package order

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/liftmode/netcents-gateway/internal/payment"
)

// ErrNotFound is returned when no order matches the lookup.
var ErrNotFound = errors.New("order: not found")

// Store is the persistence surface the payment flow and the sweep
// depend on. The hosting system owns the schema; this interface only
// reads and updates the columns the payment lifecycle touches.
type Store interface {
	// GetByID loads one order with its payment record.
	GetByID(ctx context.Context, id uuid.UUID) (Order, error)
	// GetByIncrementID loads one order by its human-facing number.
	GetByIncrementID(ctx context.Context, incrementID string) (Order, error)
	// ListPendingSync returns orders still awaiting payment
	// confirmation for the given payment method, oldest first.
	ListPendingSync(ctx context.Context, method string, limit int32) ([]Order, error)
	// SaveTransition persists the order's state, status and payment
	// status together with a status history comment.
	SaveTransition(ctx context.Context, ord *Order, note string) error
	// SavePaymentRecord persists the payment record for an order.
	SavePaymentRecord(ctx context.Context, id uuid.UUID, rec payment.Record) error
}
