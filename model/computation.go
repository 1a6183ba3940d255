package model

import "time"

// ComputationKind discriminates what the confidential-compute service is
// asked to do. Aggregate and init produce a new ciphertext state; the
// reveal kinds surface a plaintext scalar and leave the state untouched.
type ComputationKind string

const (
	ComputationInit      ComputationKind = "init"
	ComputationAggregate ComputationKind = "aggregate"
	ComputationThreshold ComputationKind = "threshold_check"
	ComputationCount     ComputationKind = "count_reveal"
)

// ComputationStatus is the lifecycle of one computation request. ISSUED is
// the only non-terminal status.
type ComputationStatus string

const (
	ComputationIssued   ComputationStatus = "ISSUED"
	ComputationApplied  ComputationStatus = "APPLIED"
	ComputationRejected ComputationStatus = "REJECTED"
	ComputationAborted  ComputationStatus = "ABORTED"
)

// ComputationRequest is the persisted record of one request to the
// confidential-compute service, keyed by correlation id. RevealedBool and
// RevealedCount hold the plaintext result for the reveal kinds once the
// callback has been applied.
type ComputationRequest struct {
	ID            int64             `json:"-"`
	CorrelationID string            `json:"correlation_id"`
	EntryID       string            `json:"entry_id"`
	Kind          ComputationKind   `json:"kind"`
	Status        ComputationStatus `json:"status"`
	Threshold     uint64            `json:"threshold,omitempty"`
	RevealedBool  *bool             `json:"revealed_bool,omitempty"`
	RevealedCount *uint64           `json:"revealed_count,omitempty"`
	IssuedAt      time.Time         `json:"issued_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// ComputeSubmission is the outbound payload forwarded to the
// confidential-compute service. EncryptedDelta is the caller-encrypted
// update for aggregate computations; CurrentState is the entry's ciphertext
// at issue time.
type ComputeSubmission struct {
	CorrelationID  string          `json:"correlation_id"`
	EntryID        string          `json:"entry_id"`
	Kind           ComputationKind `json:"kind"`
	CurrentState   []byte          `json:"current_state,omitempty"`
	EncryptedDelta []byte          `json:"encrypted_delta,omitempty"`
	Threshold      uint64          `json:"threshold,omitempty"`
}

// Outcome tags for ComputeOutcome.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeAborted = "ABORTED"
)

// ComputeOutcome is the terminal result delivered by the compute service.
// Delivery is at-least-once; the handler must treat redelivery of a
// terminal outcome as a no-op.
type ComputeOutcome struct {
	CorrelationID string  `json:"correlation_id"`
	Outcome       string  `json:"outcome"`
	Ciphertext    []byte  `json:"ciphertext,omitempty"`
	Version       uint64  `json:"version,omitempty"`
	RevealedBool  *bool   `json:"revealed_bool,omitempty"`
	RevealedCount *uint64 `json:"revealed_count,omitempty"`
}

func (o *ComputeOutcome) Success() bool {
	return o.Outcome == OutcomeSuccess
}
