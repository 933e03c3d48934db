package payment

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SnapshotVersion is the schema version written into every new
// snapshot. Older payloads without a version field decode as version 0
// and are read field-by-field, never rejected.
const SnapshotVersion = 1

// Snapshot is the subset of a gateway response persisted with the
// order. It is the only gateway state that survives a restart, so the
// reconciliation sweep works entirely from these fields.
type Snapshot struct {
	Version       int    `json:"version"`
	Status        string `json:"status,omitempty"`
	Confirmation  string `json:"confirmation,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Token         string `json:"token,omitempty"`
	Message       string `json:"message,omitempty"`
}

// SnapshotFromBody extracts the persisted fields from a parsed gateway
// body. Missing keys leave zero values; numeric statuses are rendered
// as their decimal string.
func SnapshotFromBody(body map[string]any) Snapshot {
	return Snapshot{
		Version:       SnapshotVersion,
		Status:        bodyString(body, "status"),
		Confirmation:  bodyString(body, "confirmation"),
		TransactionID: bodyString(body, "transaction_id"),
		Token:         bodyString(body, "token"),
		Message:       bodyString(body, "message"),
	}
}

// TransactionRef returns the identifier usable against the transactions
// endpoint: the confirmation when present, else the transaction id.
func (s Snapshot) TransactionRef() string {
	if s.Confirmation != "" {
		return s.Confirmation
	}
	return s.TransactionID
}

// HasSyncReference reports whether the snapshot carries anything the
// sweep can resolve a remote status from.
func (s Snapshot) HasSyncReference() bool {
	return s.Token != "" || s.TransactionRef() != ""
}

// Record is the payment state stored alongside an order: the gateway
// transaction identifier, the response snapshot, and whether the
// transaction is settled. A closed record is terminal for capture but
// still refundable.
type Record struct {
	TransactionID     string   `json:"transaction_id,omitempty"`
	Snapshot          Snapshot `json:"snapshot"`
	TransactionClosed bool     `json:"transaction_closed"`
}

// HasTransaction reports whether an authorize or capture ever
// succeeded for this record.
func (r Record) HasTransaction() bool {
	return r.TransactionID != "" || r.Snapshot.TransactionRef() != ""
}

// EncodeRecord renders a record for storage.
func EncodeRecord(r Record) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("payment: encode record: %w", err)
	}
	return raw, nil
}

// DecodeRecord parses a stored record. An empty payload decodes as the
// zero record so rows created before a payment attempt stay readable.
func DecodeRecord(raw []byte) (Record, error) {
	var r Record
	if len(raw) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return Record{}, fmt.Errorf("payment: decode record: %w", err)
	}
	return r, nil
}

func bodyString(body map[string]any, key string) string {
	if body == nil {
		return ""
	}
	switch t := body[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", t), "0"), ".")
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
