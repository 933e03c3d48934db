package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/liftmode/netcents-gateway/internal/gateway"
	"github.com/liftmode/netcents-gateway/internal/obs"
)

// MethodCode identifies this processor in order rows and API routes.
const MethodCode = "netcents"

// ErrNoSyncReference means a payment record carries neither a token
// nor a transaction reference, so no remote status can be fetched. The
// sweep skips such orders instead of guessing.
var ErrNoSyncReference = errors.New("payment: no gateway reference to sync against")

// InvalidAmountError rejects a non-positive amount before any gateway
// traffic happens.
type InvalidAmountError struct {
	Amount decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("payment: invalid amount for authorization: %s", e.Amount.String())
}

// RefundUnavailableError means the refund preconditions are not met;
// it never indicates a gateway failure.
type RefundUnavailableError struct {
	Reason string
}

func (e *RefundUnavailableError) Error() string {
	return "payment: refund unavailable: " + e.Reason
}

// Caller is the gateway request surface the method depends on.
// *gateway.Client satisfies it.
type Caller interface {
	PostJSON(ctx context.Context, path string, payload []byte) (gateway.Result, error)
	Get(ctx context.Context, path string) (gateway.Result, error)
}

// AuthorizeRequest carries everything a sale call needs.
type AuthorizeRequest struct {
	Order    gateway.SaleOrder
	Billing  gateway.BillingAddress
	Card     gateway.Card
	Amount   decimal.Decimal
	ClientIP string
}

// CardProcessor is the capability set checkout and reconciliation code
// programs against. Capabilities are explicit methods, not flags on a
// shared base type.
type CardProcessor interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (Record, error)
	Capture(ctx context.Context, req AuthorizeRequest) (Record, error)
	Refund(ctx context.Context, rec Record, amount decimal.Decimal) (Record, error)
	CanRefund() bool
}

// StatusFetcher resolves the gateway's current view of a stored
// snapshot. The sweep is its only caller.
type StatusFetcher interface {
	Status(ctx context.Context, snap Snapshot) (map[string]any, error)
}

// Method drives card payments through the gateway. All collaborators
// arrive through the struct; nothing is resolved globally.
type Method struct {
	Gateway       Caller
	Validator     gateway.Validator
	Logger        zerolog.Logger
	RefundEnabled bool
}

var (
	_ CardProcessor = (*Method)(nil)
	_ StatusFetcher = (*Method)(nil)
)

// Authorize runs a sale and records the open transaction. The amount
// is validated before any network call.
func (m *Method) Authorize(ctx context.Context, req AuthorizeRequest) (Record, error) {
	rec, err := m.sale(ctx, "authorize", req)
	if err != nil {
		return Record{}, err
	}
	rec.TransactionClosed = false
	return rec, nil
}

// Capture runs the same sale call as Authorize but settles the
// transaction immediately.
func (m *Method) Capture(ctx context.Context, req AuthorizeRequest) (Record, error) {
	rec, err := m.sale(ctx, "capture", req)
	if err != nil {
		return Record{}, err
	}
	rec.TransactionClosed = true
	return rec, nil
}

func (m *Method) sale(ctx context.Context, op string, req AuthorizeRequest) (Record, error) {
	if !req.Amount.IsPositive() {
		opResult(op, "invalid_amount")
		return Record{}, &InvalidAmountError{Amount: req.Amount}
	}

	sale := gateway.BuildSaleRequest(req.Order, req.Billing, req.Card, req.Amount, req.ClientIP)
	payload, err := json.Marshal(sale)
	if err != nil {
		return Record{}, fmt.Errorf("payment: encode sale request: %w", err)
	}

	res, err := m.Gateway.PostJSON(ctx, "/payment", payload)
	if err != nil {
		opResult(op, "transport_error")
		return Record{}, err
	}
	body, err := m.Validator.Validate(ctx, res, payload)
	if err != nil {
		opResult(op, "rejected")
		return Record{}, err
	}

	snap := SnapshotFromBody(body)
	m.Logger.Info().
		Str("operation", op).
		Str("invoice", req.Order.IncrementID).
		Str("confirmation", snap.Confirmation).
		Str("transaction_id", snap.TransactionID).
		Msg("payment_approved")
	opResult(op, "approved")

	return Record{TransactionID: snap.TransactionID, Snapshot: snap}, nil
}

// Refund reverses a settled payment. It requires the refund capability
// to be enabled and a stored confirmation to address the original
// transaction.
func (m *Method) Refund(ctx context.Context, rec Record, amount decimal.Decimal) (Record, error) {
	if !m.RefundEnabled {
		opResult("refund", "unavailable")
		return rec, &RefundUnavailableError{Reason: "refunds are disabled for this account"}
	}
	confirmation := rec.Snapshot.Confirmation
	if confirmation == "" {
		opResult("refund", "unavailable")
		return rec, &RefundUnavailableError{Reason: "no stored confirmation for this payment"}
	}
	if !amount.IsPositive() {
		opResult("refund", "invalid_amount")
		return rec, &InvalidAmountError{Amount: amount}
	}

	payload, err := json.Marshal(map[string]json.Number{
		"amount": json.Number(amount.StringFixed(2)),
	})
	if err != nil {
		return rec, fmt.Errorf("payment: encode refund request: %w", err)
	}

	path := "/payment/" + url.PathEscape(confirmation) + "/refund"
	res, err := m.Gateway.PostJSON(ctx, path, payload)
	if err != nil {
		opResult("refund", "transport_error")
		return rec, err
	}
	body, err := m.Validator.Validate(ctx, res, payload)
	if err != nil {
		opResult("refund", "rejected")
		return rec, err
	}

	m.Logger.Info().
		Str("operation", "refund").
		Str("confirmation", confirmation).
		Str("amount", amount.StringFixed(2)).
		Msg("payment_refunded")
	opResult("refund", "approved")

	snap := SnapshotFromBody(body)
	if snap.Confirmation == "" {
		snap.Confirmation = confirmation
	}
	if snap.TransactionID == "" {
		snap.TransactionID = rec.TransactionID
	}
	rec.Snapshot = snap
	rec.TransactionClosed = true
	return rec, nil
}

// CanRefund reports whether the refund capability is enabled.
func (m *Method) CanRefund() bool {
	return m.RefundEnabled
}

// Status fetches the gateway's current status for a stored snapshot.
// A token resolves through the storefront verify endpoint; otherwise
// the transaction reference is looked up directly. The body is
// returned unvalidated so the caller can classify any status, approved
// or not, without triggering rejection alerts.
func (m *Method) Status(ctx context.Context, snap Snapshot) (map[string]any, error) {
	switch {
	case snap.Token != "":
		payload, err := json.Marshal(map[string]string{"token": snap.Token})
		if err != nil {
			return nil, fmt.Errorf("payment: encode verify request: %w", err)
		}
		res, err := m.Gateway.PostJSON(ctx, "/magento/verify", payload)
		if err != nil {
			return nil, err
		}
		return res.Body, nil
	case snap.TransactionRef() != "":
		res, err := m.Gateway.Get(ctx, "/transactions/"+url.PathEscape(snap.TransactionRef()))
		if err != nil {
			return nil, err
		}
		return res.Body, nil
	default:
		return nil, ErrNoSyncReference
	}
}

func opResult(op, result string) {
	if obs.PaymentOpTotal != nil {
		obs.PaymentOpTotal.WithLabelValues(op, result).Inc()
	}
}
