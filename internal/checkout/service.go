package checkout

import (
	"context"
	"errors"
	"net/http"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/liftmode/netcents-gateway/internal/common"
	"github.com/liftmode/netcents-gateway/internal/gateway"
	"github.com/liftmode/netcents-gateway/internal/lock"
	"github.com/liftmode/netcents-gateway/internal/order"
	"github.com/liftmode/netcents-gateway/internal/payment"
)

// GenericDeclineMessage is the only decline detail shown to customers.
// Gateway reasons stay in the logs.
const GenericDeclineMessage = "This credit card processor cannot accept your card; please select a different payment method."

type CardInput struct {
	Number      string `json:"number" validate:"required,min=12,max=19"`
	ExpiryMonth string `json:"expiryMonth" validate:"required,len=2,numeric"`
	ExpiryYear  string `json:"expiryYear" validate:"required,len=4,numeric"`
	CCV         string `json:"ccv" validate:"required,min=3,max=4,numeric"`
}

type BillingInput struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Street    string `json:"street" validate:"required"`
	City      string `json:"city" validate:"required"`
	State     string `json:"state"`
	Zip       string `json:"zip" validate:"required"`
	Country   string `json:"country" validate:"required,iso3166_1_alpha2"`
	Phone     string `json:"phone"`
}

// PaymentInput is the authorize/capture request body. Amount travels
// as a string so no float precision is lost on the way in.
type PaymentInput struct {
	OrderID string       `json:"orderId" validate:"required,uuid4"`
	Amount  string       `json:"amount" validate:"required"`
	Card    CardInput    `json:"card" validate:"required"`
	Billing BillingInput `json:"billing" validate:"required"`
}

type RefundInput struct {
	OrderID string `json:"orderId" validate:"required,uuid4"`
	Amount  string `json:"amount" validate:"required"`
}

// Output is what callers get back; card data never appears in it.
type Output struct {
	OrderID           string `json:"orderId"`
	IncrementID       string `json:"incrementId"`
	State             string `json:"state"`
	Confirmation      string `json:"confirmation,omitempty"`
	TransactionID     string `json:"transactionId,omitempty"`
	TransactionClosed bool   `json:"transactionClosed"`
}

// Service drives card payments for stored orders. A per-order Redis
// lock serializes payment operations against the reconciliation sweep.
type Service struct {
	Orders      order.Store
	Processor   payment.CardProcessor
	Transitions *order.Transitioner
	Locker      lock.Locker
	Validate    *validator.Validate
	Logger      zerolog.Logger
	LockTTL     time.Duration
}

// Authorize charges the card and stores the open transaction; the
// order stays pending until capture or the sweep confirms it.
func (s *Service) Authorize(ctx context.Context, in PaymentInput, clientIP string) (Output, error) {
	return s.pay(ctx, in, clientIP, false)
}

// Capture charges the card and settles immediately, moving the order
// to processing.
func (s *Service) Capture(ctx context.Context, in PaymentInput, clientIP string) (Output, error) {
	return s.pay(ctx, in, clientIP, true)
}

func (s *Service) pay(ctx context.Context, in PaymentInput, clientIP string, settle bool) (Output, error) {
	orderID, amount, err := s.validatePayment(in)
	if err != nil {
		return Output{}, err
	}

	var out Output
	err = s.withOrderLock(ctx, in.OrderID, func(ctx context.Context) error {
		ord, err := s.Orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if ord.PaymentMethod != payment.MethodCode {
			return common.NewAppError("WRONG_METHOD", "order does not use this payment method", http.StatusConflict, nil)
		}
		if !ord.CanShip() {
			return common.NewAppError("ORDER_NOT_PAYABLE", "order cannot accept a payment in its current state", http.StatusConflict, nil)
		}

		req := payment.AuthorizeRequest{
			Order: gateway.SaleOrder{
				IncrementID:   ord.IncrementID,
				CustomerEmail: ord.CustomerEmail,
				CurrencyCode:  ord.CurrencyCode,
			},
			Billing: gateway.BillingAddress{
				FirstName: in.Billing.FirstName,
				LastName:  in.Billing.LastName,
				Street:    in.Billing.Street,
				City:      in.Billing.City,
				State:     in.Billing.State,
				Zip:       in.Billing.Zip,
				Country:   in.Billing.Country,
				Phone:     in.Billing.Phone,
			},
			Card: gateway.Card{
				Number:      in.Card.Number,
				ExpiryMonth: in.Card.ExpiryMonth,
				ExpiryYear:  in.Card.ExpiryYear,
				CCV:         in.Card.CCV,
			},
			Amount:   amount,
			ClientIP: clientIP,
		}

		var rec payment.Record
		if settle {
			rec, err = s.Processor.Capture(ctx, req)
		} else {
			rec, err = s.Processor.Authorize(ctx, req)
		}
		if err != nil {
			return err
		}

		if settle {
			if err := s.Transitions.MoveToProcessing(ctx, &ord, rec); err != nil {
				s.Logger.Error().Err(err).
					Str("increment_id", ord.IncrementID).
					Str("confirmation", rec.Snapshot.Confirmation).
					Msg("payment_record_save_failed")
				// keep the confirmation reachable so the sweep can
				// still settle the order
				if saveErr := s.Orders.SavePaymentRecord(ctx, ord.ID, rec); saveErr != nil {
					s.Logger.Error().Err(saveErr).
						Str("increment_id", ord.IncrementID).
						Msg("payment_record_fallback_save_failed")
				}
				return common.NewAppError("INTERNAL", "payment accepted but not recorded", http.StatusInternalServerError, err)
			}
		} else {
			ord.Payment = rec
			if err := s.Orders.SavePaymentRecord(ctx, ord.ID, rec); err != nil {
				// the charge went through; surface a retryable error
				// without losing the confirmation from the logs
				s.Logger.Error().Err(err).
					Str("increment_id", ord.IncrementID).
					Str("confirmation", rec.Snapshot.Confirmation).
					Msg("payment_record_save_failed")
				return common.NewAppError("INTERNAL", "payment accepted but not recorded", http.StatusInternalServerError, err)
			}
		}
		out = outputFor(&ord)
		return nil
	})
	return out, err
}

// Refund reverses a settled payment on an order.
func (s *Service) Refund(ctx context.Context, in RefundInput) (Output, error) {
	if err := s.Validate.Struct(in); err != nil {
		return Output{}, err
	}
	orderID, err := uuid.Parse(in.OrderID)
	if err != nil {
		return Output{}, common.NewAppError("BAD_REQUEST", "invalid order id", http.StatusBadRequest, err)
	}
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		return Output{}, common.NewAppError("BAD_REQUEST", "invalid amount", http.StatusBadRequest, err)
	}

	var out Output
	err = s.withOrderLock(ctx, in.OrderID, func(ctx context.Context) error {
		ord, err := s.Orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !ord.Payment.HasTransaction() {
			return &payment.RefundUnavailableError{Reason: "order has no recorded transaction"}
		}
		rec, err := s.Processor.Refund(ctx, ord.Payment, amount)
		if err != nil {
			return err
		}
		ord.Payment = rec
		if err := s.Orders.SavePaymentRecord(ctx, ord.ID, rec); err != nil {
			s.Logger.Error().Err(err).
				Str("increment_id", ord.IncrementID).
				Msg("refund_record_save_failed")
			return common.NewAppError("INTERNAL", "refund accepted but not recorded", http.StatusInternalServerError, err)
		}
		out = outputFor(&ord)
		return nil
	})
	return out, err
}

func (s *Service) validatePayment(in PaymentInput) (uuid.UUID, decimal.Decimal, error) {
	if err := s.Validate.Struct(in); err != nil {
		return uuid.Nil, decimal.Zero, err
	}
	orderID, err := uuid.Parse(in.OrderID)
	if err != nil {
		return uuid.Nil, decimal.Zero, common.NewAppError("BAD_REQUEST", "invalid order id", http.StatusBadRequest, err)
	}
	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		return uuid.Nil, decimal.Zero, common.NewAppError("BAD_REQUEST", "invalid amount", http.StatusBadRequest, err)
	}
	return orderID, amount, nil
}

func (s *Service) withOrderLock(ctx context.Context, orderID string, fn func(context.Context) error) error {
	if s.Locker.R == nil {
		return fn(ctx)
	}
	return s.Locker.WithLock(ctx, lock.OrderKey(orderID), s.LockTTL, fn)
}

func outputFor(ord *order.Order) Output {
	return Output{
		OrderID:           ord.ID.String(),
		IncrementID:       ord.IncrementID,
		State:             string(ord.State),
		Confirmation:      ord.Payment.Snapshot.Confirmation,
		TransactionID:     ord.Payment.TransactionID,
		TransactionClosed: ord.Payment.TransactionClosed,
	}
}

// errNotFound reports order lookup misses for the handler layer.
func errNotFound(err error) bool {
	return errors.Is(err, order.ErrNotFound)
}
