package model

import "time"

// AggregateStateSize is the fixed size of the opaque aggregate ciphertext:
// three 32-byte encrypted words (count, volume, fees) maintained by the
// confidential-compute service. The ledger stores and forwards the blob,
// it never interprets the bytes.
const AggregateStateSize = 96

// Entry is the persistent ledger record for one owning subject. RunningTotal
// is the plaintext gross volume accumulator; the confidential counterpart
// lives in AggregateState and is only ever advanced through the computation
// callback, guarded by AggregateVersion.
type Entry struct {
	ID               int64                  `json:"-"`
	EntryID          string                 `json:"entry_id"`
	Owner            string                 `json:"owner"`
	Active           bool                   `json:"active"`
	RunningTotal     uint64                 `json:"running_total"`
	AggregateState   []byte                 `json:"aggregate_state"`
	AggregateVersion uint64                 `json:"aggregate_version"`
	PendingRequestID string                 `json:"pending_request_id,omitempty"`
	MetaData         map[string]interface{} `json:"meta_data,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

// HasPendingRequest reports whether a confidential computation is in flight
// for this entry. While true, no new computation request may be issued.
func (e *Entry) HasPendingRequest() bool {
	return e.PendingRequestID != ""
}

type EntryFilter struct {
	ID   int64     `json:"id"`
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}
