package payment

import (
	"testing"
)

func TestSnapshotFromBodyCoercesNumericFields(t *testing.T) {
	snap := SnapshotFromBody(map[string]any{
		"status":         float64(200),
		"confirmation":   "abc123",
		"transaction_id": float64(42),
		"message":        " ok ",
	})
	if snap.Version != SnapshotVersion {
		t.Fatalf("expected version %d, got %d", SnapshotVersion, snap.Version)
	}
	if snap.Status != "200" {
		t.Fatalf("numeric status not normalized: %q", snap.Status)
	}
	if snap.TransactionID != "42" {
		t.Fatalf("numeric transaction id not normalized: %q", snap.TransactionID)
	}
	if snap.Message != "ok" {
		t.Fatalf("message not trimmed: %q", snap.Message)
	}
}

func TestTransactionRefPrefersConfirmation(t *testing.T) {
	snap := Snapshot{Confirmation: "abc123", TransactionID: "tx-9"}
	if got := snap.TransactionRef(); got != "abc123" {
		t.Fatalf("expected confirmation, got %q", got)
	}
	snap.Confirmation = ""
	if got := snap.TransactionRef(); got != "tx-9" {
		t.Fatalf("expected transaction id fallback, got %q", got)
	}
}

func TestHasSyncReference(t *testing.T) {
	cases := []struct {
		snap Snapshot
		want bool
	}{
		{Snapshot{}, false},
		{Snapshot{Token: "tok"}, true},
		{Snapshot{Confirmation: "abc"}, true},
		{Snapshot{TransactionID: "tx"}, true},
	}
	for _, c := range cases {
		if got := c.snap.HasSyncReference(); got != c.want {
			t.Fatalf("%+v: expected %v", c.snap, got)
		}
	}
}

func TestRecordRoundTrip(t *testing.T) {
	rec := Record{
		TransactionID:     "tx-9",
		Snapshot:          Snapshot{Version: SnapshotVersion, Status: "200", Confirmation: "abc123"},
		TransactionClosed: true,
	}
	raw, err := EncodeRecord(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeRecord(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != rec {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, rec)
	}
}

func TestDecodeRecordLegacyPayload(t *testing.T) {
	// rows written before the snapshot carried a version
	raw := []byte(`{"transaction_id":"tx-1","snapshot":{"status":"200","confirmation":"c-1"}}`)
	rec, err := DecodeRecord(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Snapshot.Version != 0 {
		t.Fatalf("legacy payload must decode as version 0, got %d", rec.Snapshot.Version)
	}
	if rec.Snapshot.Confirmation != "c-1" {
		t.Fatalf("legacy fields lost: %+v", rec.Snapshot)
	}
}

func TestDecodeRecordEmpty(t *testing.T) {
	rec, err := DecodeRecord(nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.HasTransaction() {
		t.Fatalf("zero record must not report a transaction: %+v", rec)
	}
}
