package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/liftmode/netcents-gateway/internal/gateway"
)

type stubGateway struct {
	posts     []string
	gets      []string
	lastBody  []byte
	result    gateway.Result
	getResult gateway.Result
	err       error
}

func (s *stubGateway) PostJSON(_ context.Context, path string, payload []byte) (gateway.Result, error) {
	s.posts = append(s.posts, path)
	s.lastBody = payload
	if s.err != nil {
		return gateway.Result{}, s.err
	}
	return s.result, nil
}

func (s *stubGateway) Get(_ context.Context, path string) (gateway.Result, error) {
	s.gets = append(s.gets, path)
	if s.err != nil {
		return gateway.Result{}, s.err
	}
	return s.getResult, nil
}

func approvedResult() gateway.Result {
	return gateway.Result{
		HTTPStatus: 201,
		Body: map[string]any{
			"status":         "201",
			"confirmation":   "abc123",
			"transaction_id": "tx-9",
		},
	}
}

func newMethod(gw *stubGateway) *Method {
	return &Method{
		Gateway:       gw,
		Validator:     gateway.Validator{Logger: zerolog.Nop()},
		Logger:        zerolog.Nop(),
		RefundEnabled: true,
	}
}

func saleRequest(amount string) AuthorizeRequest {
	return AuthorizeRequest{
		Order:    gateway.SaleOrder{IncrementID: "100000042", CustomerEmail: "a@b.test", CurrencyCode: "USD"},
		Billing:  gateway.BillingAddress{FirstName: "Ann", LastName: "Lee", Street: "1 Main St", Phone: "555-867-5309"},
		Card:     gateway.Card{Number: "4111111111111111", ExpiryMonth: "12", ExpiryYear: "2030", CCV: "123"},
		Amount:   decimal.RequireFromString(amount),
		ClientIP: "10.0.0.1",
	}
}

func TestAuthorizeRejectsNonPositiveAmountBeforeNetwork(t *testing.T) {
	gw := &stubGateway{}
	m := newMethod(gw)
	for _, amount := range []string{"0", "-5.00"} {
		_, err := m.Authorize(context.Background(), saleRequest(amount))
		var ierr *InvalidAmountError
		if !errors.As(err, &ierr) {
			t.Fatalf("amount %s: expected InvalidAmountError, got %v", amount, err)
		}
	}
	if len(gw.posts) != 0 {
		t.Fatalf("gateway called %d times for invalid amounts", len(gw.posts))
	}
}

func TestAuthorizeStoresOpenTransaction(t *testing.T) {
	gw := &stubGateway{result: approvedResult()}
	m := newMethod(gw)
	rec, err := m.Authorize(context.Background(), saleRequest("19.99"))
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if rec.TransactionClosed {
		t.Fatal("authorize must leave the transaction open")
	}
	if rec.Snapshot.Confirmation != "abc123" || rec.TransactionID != "tx-9" {
		t.Fatalf("snapshot not stored: %+v", rec)
	}
	if len(gw.posts) != 1 || gw.posts[0] != "/payment" {
		t.Fatalf("unexpected gateway calls: %v", gw.posts)
	}
}

func TestCaptureClosesTransaction(t *testing.T) {
	gw := &stubGateway{result: approvedResult()}
	m := newMethod(gw)
	rec, err := m.Capture(context.Background(), saleRequest("19.99"))
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !rec.TransactionClosed {
		t.Fatal("capture must settle the transaction")
	}
}

func TestAuthorizeRejectionSurfacesError(t *testing.T) {
	gw := &stubGateway{result: gateway.Result{
		HTTPStatus: 200,
		Body:       map[string]any{"status": "402", "message": "declined"},
	}}
	m := newMethod(gw)
	_, err := m.Authorize(context.Background(), saleRequest("19.99"))
	var rerr *gateway.RejectionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if rerr.Status != "402" || rerr.Message != "declined" {
		t.Fatalf("unexpected rejection: %+v", rerr)
	}
}

func TestRefundRequiresCapability(t *testing.T) {
	gw := &stubGateway{result: approvedResult()}
	m := newMethod(gw)
	m.RefundEnabled = false
	rec := Record{Snapshot: Snapshot{Confirmation: "abc123"}, TransactionClosed: true}
	_, err := m.Refund(context.Background(), rec, decimal.RequireFromString("5.00"))
	var uerr *RefundUnavailableError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected RefundUnavailableError, got %v", err)
	}
	if len(gw.posts) != 0 {
		t.Fatal("gateway must not be called when refunds are disabled")
	}
}

func TestRefundRequiresConfirmation(t *testing.T) {
	gw := &stubGateway{result: approvedResult()}
	m := newMethod(gw)
	rec := Record{TransactionID: "tx-9", TransactionClosed: true}
	_, err := m.Refund(context.Background(), rec, decimal.RequireFromString("5.00"))
	var uerr *RefundUnavailableError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected RefundUnavailableError, got %v", err)
	}
}

func TestRefundPostsToConfirmationPath(t *testing.T) {
	gw := &stubGateway{result: gateway.Result{
		HTTPStatus: 200,
		Body:       map[string]any{"status": "200"},
	}}
	m := newMethod(gw)
	rec := Record{TransactionID: "tx-9", Snapshot: Snapshot{Confirmation: "abc123"}, TransactionClosed: true}
	out, err := m.Refund(context.Background(), rec, decimal.RequireFromString("5.00"))
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if len(gw.posts) != 1 || gw.posts[0] != "/payment/abc123/refund" {
		t.Fatalf("unexpected refund path: %v", gw.posts)
	}
	if string(gw.lastBody) != `{"amount":5.00}` {
		t.Fatalf("unexpected refund body: %s", gw.lastBody)
	}
	if out.Snapshot.Confirmation != "abc123" || out.TransactionID != "tx-9" {
		t.Fatalf("identifiers lost on refund: %+v", out)
	}
}

func TestStatusPrefersToken(t *testing.T) {
	gw := &stubGateway{result: gateway.Result{Body: map[string]any{"status": "200"}}}
	m := newMethod(gw)
	body, err := m.Status(context.Background(), Snapshot{Token: "tok-1", Confirmation: "abc123"})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(gw.posts) != 1 || gw.posts[0] != "/magento/verify" {
		t.Fatalf("expected verify call, got %v %v", gw.posts, gw.gets)
	}
	if string(gw.lastBody) != `{"token":"tok-1"}` {
		t.Fatalf("unexpected verify body: %s", gw.lastBody)
	}
	if body["status"] != "200" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestStatusFallsBackToTransactionRef(t *testing.T) {
	gw := &stubGateway{getResult: gateway.Result{Body: map[string]any{"status": "404"}}}
	m := newMethod(gw)
	if _, err := m.Status(context.Background(), Snapshot{TransactionID: "tx-9"}); err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(gw.gets) != 1 || gw.gets[0] != "/transactions/tx-9" {
		t.Fatalf("unexpected lookup path: %v", gw.gets)
	}
}

func TestStatusWithoutReference(t *testing.T) {
	m := newMethod(&stubGateway{})
	_, err := m.Status(context.Background(), Snapshot{})
	if !errors.Is(err, ErrNoSyncReference) {
		t.Fatalf("expected ErrNoSyncReference, got %v", err)
	}
}
