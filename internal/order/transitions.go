package order

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/liftmode/netcents-gateway/internal/payment"
)

// Transitioner applies payment-driven state changes. Persistence
// failures are contained: they are logged and the order is left for
// the next sweep, never allowed to abort a whole reconciliation run.
type Transitioner struct {
	Store  Store
	Logger zerolog.Logger
}

// MoveToProcessing confirms the payment: the transaction record is
// closed, the order advances to processing and a thank-you comment is
// appended. Orders that cannot ship are left untouched. Persistence
// errors are returned; synchronous callers must not report a settled
// charge as recorded when it is not.
func (t *Transitioner) MoveToProcessing(ctx context.Context, ord *Order, rec payment.Record) error {
	if !ord.CanShip() {
		t.Logger.Debug().
			Str("increment_id", ord.IncrementID).
			Str("state", string(ord.State)).
			Msg("order_not_shippable")
		return nil
	}
	rec.TransactionClosed = true
	ord.Payment = rec
	ord.State = StateProcessing
	ord.Status = string(StateProcessing)
	ord.PaymentStatus = PaymentPaid

	if err := t.Store.SaveTransition(ctx, ord, NotePaymentReceived); err != nil {
		return err
	}
	t.Logger.Info().
		Str("increment_id", ord.IncrementID).
		Str("confirmation", rec.Snapshot.Confirmation).
		Msg("order_moved_to_processing")
	return nil
}

// PutOnProcessing is the sweep-facing wrapper around MoveToProcessing:
// a persistence failure is logged and the order is left for the next
// sweep.
func (t *Transitioner) PutOnProcessing(ctx context.Context, ord *Order, rec payment.Record) {
	if err := t.MoveToProcessing(ctx, ord, rec); err != nil {
		t.Logger.Error().Err(err).
			Str("increment_id", ord.IncrementID).
			Msg("order_processing_transition_failed")
	}
}

// PutOnHold parks the order for manual review with the given reason as
// its history comment. Already-held orders are left alone.
func (t *Transitioner) PutOnHold(ctx context.Context, ord *Order, reason string) {
	if ord.State == StateOnHold {
		return
	}
	ord.State = StateOnHold
	ord.Status = string(StateOnHold)

	if err := t.Store.SaveTransition(ctx, ord, reason); err != nil {
		t.Logger.Error().Err(err).
			Str("increment_id", ord.IncrementID).
			Str("reason", reason).
			Msg("order_hold_transition_failed")
		return
	}
	t.Logger.Info().
		Str("increment_id", ord.IncrementID).
		Str("reason", reason).
		Msg("order_put_on_hold")
}
