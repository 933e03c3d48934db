package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/liftmode/netcents-gateway/internal/common"
	"github.com/liftmode/netcents-gateway/internal/gateway"
	"github.com/liftmode/netcents-gateway/internal/payment"
)

type Handler struct {
	Svc *Service
}

// Mount registers the payment routes.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/payments/authorize", h.Authorize)
	r.Post("/payments/capture", h.Capture)
	r.Post("/payments/refund", h.Refund)
}

func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var in PaymentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	out, err := h.Svc.Authorize(r.Context(), in, common.ClientIP(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

func (h *Handler) Capture(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var in PaymentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	out, err := h.Svc.Capture(r.Context(), in, common.ClientIP(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var in RefundInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	out, err := h.Svc.Refund(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// writeError maps domain errors onto the wire. Declines deliberately
// lose their gateway reason before reaching the customer.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var (
		appErr    *common.AppError
		valErrs   validator.ValidationErrors
		amountErr *payment.InvalidAmountError
		refundErr *payment.RefundUnavailableError
		rejection *gateway.RejectionError
		transport *gateway.TransportError
	)
	switch {
	case err == nil:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unknown error", nil)
	case errors.As(err, &valErrs):
		details := make(map[string]string, len(valErrs))
		for _, fe := range valErrs {
			details[fe.Field()] = fe.Tag()
		}
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid payment request", details)
	case errors.As(err, &amountErr):
		common.JSONError(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be greater than zero", nil)
	case errors.As(err, &refundErr):
		common.JSONError(w, http.StatusConflict, "REFUND_UNAVAILABLE", refundErr.Reason, nil)
	case errors.As(err, &rejection):
		common.JSONError(w, http.StatusPaymentRequired, "PAYMENT_DECLINED", GenericDeclineMessage, nil)
	case errors.As(err, &transport):
		common.JSONError(w, http.StatusBadGateway, "GATEWAY_UNAVAILABLE", GenericDeclineMessage, nil)
	case errNotFound(err):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
	case errors.As(err, &appErr):
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusBadRequest
		}
		code := appErr.Code
		if code == "" {
			code = "BAD_REQUEST"
		}
		common.JSONError(w, status, code, appErr.Message, appErr.Details)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "payment processing failed", nil)
	}
}
