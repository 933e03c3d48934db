package recon

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/liftmode/netcents-gateway/internal/order"
	"github.com/liftmode/netcents-gateway/internal/payment"
)

type fakeStore struct {
	orders  []order.Order
	saved   map[string]order.Order
	notes   map[string]string
	listErr error
}

func newFakeStore(orders ...order.Order) *fakeStore {
	return &fakeStore{
		orders: orders,
		saved:  make(map[string]order.Order),
		notes:  make(map[string]string),
	}
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (order.Order, error) {
	for _, o := range f.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return order.Order{}, order.ErrNotFound
}

func (f *fakeStore) GetByIncrementID(_ context.Context, incrementID string) (order.Order, error) {
	for _, o := range f.orders {
		if o.IncrementID == incrementID {
			return o, nil
		}
	}
	return order.Order{}, order.ErrNotFound
}

func (f *fakeStore) ListPendingSync(_ context.Context, _ string, _ int32) ([]order.Order, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.orders, nil
}

func (f *fakeStore) SaveTransition(_ context.Context, ord *order.Order, note string) error {
	f.saved[ord.IncrementID] = *ord
	f.notes[ord.IncrementID] = note
	return nil
}

func (f *fakeStore) SavePaymentRecord(_ context.Context, _ uuid.UUID, _ payment.Record) error {
	return nil
}

type fakeStatus struct {
	byRef  map[string]map[string]any
	errors map[string]error
	calls  []payment.Snapshot
}

func (f *fakeStatus) Status(_ context.Context, snap payment.Snapshot) (map[string]any, error) {
	f.calls = append(f.calls, snap)
	ref := snap.Token
	if ref == "" {
		ref = snap.TransactionRef()
	}
	if ref == "" {
		return nil, payment.ErrNoSyncReference
	}
	if err, ok := f.errors[ref]; ok {
		return nil, err
	}
	return f.byRef[ref], nil
}

func pendingOrder(incrementID string, snap payment.Snapshot) order.Order {
	return order.Order{
		ID:            uuid.New(),
		IncrementID:   incrementID,
		State:         order.StatePendingPayment,
		Status:        string(order.StatePendingPayment),
		PaymentStatus: order.PaymentPending,
		PaymentMethod: payment.MethodCode,
		Payment:       payment.Record{Snapshot: snap},
	}
}

func newService(st *fakeStore, fetch *fakeStatus) *Service {
	return &Service{
		Orders:      st,
		Status:      fetch,
		Transitions: &order.Transitioner{Store: st, Logger: zerolog.Nop()},
		Logger:      zerolog.Nop(),
	}
}

func TestSweepConfirmsApprovedOrder(t *testing.T) {
	ord := pendingOrder("100001001", payment.Snapshot{Confirmation: "abc123"})
	st := newFakeStore(ord)
	fetch := &fakeStatus{byRef: map[string]map[string]any{
		"abc123": {"status": "200", "transaction_id": "tx-7"},
	}}

	sum, err := newService(st, fetch).Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sum.Confirmed != 1 || sum.Scanned != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	saved, ok := st.saved["100001001"]
	if !ok {
		t.Fatal("order was not persisted")
	}
	if saved.State != order.StateProcessing || saved.PaymentStatus != order.PaymentPaid {
		t.Fatalf("order not advanced: %+v", saved)
	}
	if !saved.Payment.TransactionClosed {
		t.Fatal("transaction must be closed after confirmation")
	}
	if saved.Payment.Snapshot.Confirmation != "abc123" {
		t.Fatalf("stored confirmation lost: %+v", saved.Payment.Snapshot)
	}
	if saved.Payment.Snapshot.TransactionID != "tx-7" {
		t.Fatalf("fetched transaction id not merged: %+v", saved.Payment.Snapshot)
	}
	if st.notes["100001001"] != order.NotePaymentReceived {
		t.Fatalf("unexpected history note: %q", st.notes["100001001"])
	}
}

func TestSweepSkipsOrderWithoutReference(t *testing.T) {
	ord := pendingOrder("100001002", payment.Snapshot{})
	st := newFakeStore(ord)
	fetch := &fakeStatus{}

	sum, err := newService(st, fetch).Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sum.Skipped != 1 {
		t.Fatalf("expected skip, got %+v", sum)
	}
	if len(fetch.calls) != 0 {
		t.Fatal("gateway must not be queried without a reference")
	}
	if len(st.saved) != 0 {
		t.Fatalf("order must be left untouched: %v", st.saved)
	}
}

func TestSweepHoldsUnconfirmedOrder(t *testing.T) {
	ord := pendingOrder("100001003", payment.Snapshot{Confirmation: "missing"})
	st := newFakeStore(ord)
	fetch := &fakeStatus{byRef: map[string]map[string]any{
		"missing": {"status": "404", "message": "not found"},
	}}

	sum, err := newService(st, fetch).Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sum.Held != 1 {
		t.Fatalf("expected hold, got %+v", sum)
	}
	saved := st.saved["100001003"]
	if saved.State != order.StateOnHold {
		t.Fatalf("order not held: %+v", saved)
	}
	if st.notes["100001003"] != order.HoldReasonNoTransaction {
		t.Fatalf("unexpected hold reason: %q", st.notes["100001003"])
	}
}

func TestSweepIsolatesFailures(t *testing.T) {
	bad := pendingOrder("100001004", payment.Snapshot{Confirmation: "down"})
	good := pendingOrder("100001005", payment.Snapshot{Confirmation: "ok-1"})
	st := newFakeStore(bad, good)
	fetch := &fakeStatus{
		byRef:  map[string]map[string]any{"ok-1": {"status": "200"}},
		errors: map[string]error{"down": errors.New("gateway unreachable")},
	}

	sum, err := newService(st, fetch).Sweep(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sum.Failed != 1 || sum.Confirmed != 1 {
		t.Fatalf("one failure must not block the batch: %+v", sum)
	}
	if _, ok := st.saved["100001005"]; !ok {
		t.Fatal("healthy order was not reconciled")
	}
	if _, ok := st.saved["100001004"]; ok {
		t.Fatal("failed order must stay untouched for the next sweep")
	}
}

func TestSweepUsesTokenBeforeTransactionRef(t *testing.T) {
	ord := pendingOrder("100001006", payment.Snapshot{Token: "tok-1", Confirmation: "abc123"})
	st := newFakeStore(ord)
	fetch := &fakeStatus{byRef: map[string]map[string]any{
		"tok-1": {"status": "200"},
	}}

	if _, err := newService(st, fetch).Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(fetch.calls) != 1 || fetch.calls[0].Token != "tok-1" {
		t.Fatalf("token not used for status fetch: %+v", fetch.calls)
	}
}

func TestSweepListFailure(t *testing.T) {
	st := newFakeStore()
	st.listErr = errors.New("db down")
	if _, err := newService(st, &fakeStatus{}).Sweep(context.Background()); err == nil {
		t.Fatal("expected list failure to surface")
	}
}
