package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/liftmode/netcents-gateway/internal/gateway"
	"github.com/liftmode/netcents-gateway/internal/lock"
	"github.com/liftmode/netcents-gateway/internal/obs"
	"github.com/liftmode/netcents-gateway/internal/order"
	"github.com/liftmode/netcents-gateway/internal/payment"
)

// OrderSyncError wraps a per-order failure so the sweep can report it
// without aborting the rest of the batch.
type OrderSyncError struct {
	IncrementID string
	Err         error
}

func (e *OrderSyncError) Error() string {
	return fmt.Sprintf("recon: sync order %s: %v", e.IncrementID, e.Err)
}

func (e *OrderSyncError) Unwrap() error { return e.Err }

// Summary counts what one sweep did.
type Summary struct {
	Scanned   int
	Confirmed int
	Held      int
	Skipped   int
	Failed    int
}

// Service reconciles orders stuck awaiting payment confirmation
// against the gateway's view. Orders are processed independently: a
// failure on one never blocks the others, and anything unresolved is
// picked up again by the next sweep.
type Service struct {
	Orders      order.Store
	Status      payment.StatusFetcher
	Transitions *order.Transitioner
	Locker      lock.Locker
	Logger      zerolog.Logger
	Method      string
	BatchLimit  int32
	LockTTL     time.Duration
}

// Sweep scans pending orders and settles each one: an approved remote
// status moves the order to processing, anything else parks it on hold
// for manual invoicing. Transport failures leave the order untouched.
func (s *Service) Sweep(ctx context.Context) (Summary, error) {
	start := time.Now()
	method := s.Method
	if method == "" {
		method = payment.MethodCode
	}

	orders, err := s.Orders.ListPendingSync(ctx, method, s.BatchLimit)
	if err != nil {
		return Summary{}, fmt.Errorf("recon: list pending orders: %w", err)
	}

	var sum Summary
	sum.Scanned = len(orders)
	for i := range orders {
		ord := orders[i]
		result := s.syncLocked(ctx, &ord)
		switch result {
		case resultConfirmed:
			sum.Confirmed++
		case resultHeld:
			sum.Held++
		case resultSkipped:
			sum.Skipped++
		default:
			sum.Failed++
		}
		recordSync(string(result))
	}

	if obs.ReconSweepDuration != nil {
		obs.ReconSweepDuration.Observe(obs.DurationMillis(time.Since(start)))
	}
	s.Logger.Info().
		Int("scanned", sum.Scanned).
		Int("confirmed", sum.Confirmed).
		Int("held", sum.Held).
		Int("skipped", sum.Skipped).
		Int("failed", sum.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("recon_sweep_done")
	return sum, nil
}

type syncResult string

const (
	resultConfirmed syncResult = "confirmed"
	resultHeld      syncResult = "held"
	resultSkipped   syncResult = "skipped"
	resultFailed    syncResult = "failed"
)

// syncLocked serializes against checkout on the same order. A held
// lock means a live payment attempt is in flight; the order is skipped
// and revisited next sweep.
func (s *Service) syncLocked(ctx context.Context, ord *order.Order) syncResult {
	if s.Locker.R == nil {
		return s.syncOrder(ctx, ord)
	}
	result := resultFailed
	err := s.Locker.TryWithLock(ctx, lock.OrderKey(ord.ID.String()), s.LockTTL, func(ctx context.Context) error {
		result = s.syncOrder(ctx, ord)
		return nil
	})
	if errors.Is(err, lock.ErrHeld) {
		s.Logger.Debug().Str("increment_id", ord.IncrementID).Msg("recon_order_locked")
		return resultSkipped
	}
	if err != nil {
		s.Logger.Error().Err(&OrderSyncError{IncrementID: ord.IncrementID, Err: err}).
			Msg("recon_order_failed")
		return resultFailed
	}
	return result
}

func (s *Service) syncOrder(ctx context.Context, ord *order.Order) syncResult {
	snap := ord.Payment.Snapshot
	if !snap.HasSyncReference() {
		// nothing to ask the gateway about; a human decides
		s.Logger.Warn().
			Str("increment_id", ord.IncrementID).
			Msg("recon_no_sync_reference")
		return resultSkipped
	}

	body, err := s.Status.Status(ctx, snap)
	if err != nil {
		if errors.Is(err, payment.ErrNoSyncReference) {
			return resultSkipped
		}
		s.Logger.Error().Err(&OrderSyncError{IncrementID: ord.IncrementID, Err: err}).
			Msg("recon_status_fetch_failed")
		return resultFailed
	}

	if gateway.StatusApproved(body) {
		rec := ord.Payment
		rec.Snapshot = mergeSnapshot(snap, payment.SnapshotFromBody(body))
		s.Transitions.PutOnProcessing(ctx, ord, rec)
		return resultConfirmed
	}

	s.Transitions.PutOnHold(ctx, ord, order.HoldReasonNoTransaction)
	return resultHeld
}

// mergeSnapshot overlays the fetched status onto the stored snapshot,
// keeping stored identifiers the status response does not repeat.
func mergeSnapshot(stored, fetched payment.Snapshot) payment.Snapshot {
	out := fetched
	if out.Confirmation == "" {
		out.Confirmation = stored.Confirmation
	}
	if out.TransactionID == "" {
		out.TransactionID = stored.TransactionID
	}
	if out.Token == "" {
		out.Token = stored.Token
	}
	return out
}

func recordSync(result string) {
	if obs.ReconSyncTotal != nil {
		obs.ReconSyncTotal.WithLabelValues(result).Inc()
	}
}
