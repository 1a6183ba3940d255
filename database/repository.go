/*
Copyright 2025 Cloak Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package database

import (
	"context"

	"github.com/cloakfinance/cloak/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	entry       // Interface for ledger-entry operations
	transfer    // Interface for transfer operations
	computation // Interface for confidential-computation bookkeeping
	balance     // Interface for account balance movements
}

// entry defines methods for handling ledger entries.
type entry interface {
	CreateEntry(entry model.Entry) (model.Entry, error)                 // Creates a new entry; owner must be unused
	GetEntryByID(ctx context.Context, id string) (*model.Entry, error)  // Retrieves an entry by ID
	GetEntryByOwner(ctx context.Context, owner string) (*model.Entry, error)
	GetAllEntries(limit, offset int) ([]model.Entry, error)
	UpdateEntryActive(ctx context.Context, id string, active bool) error // Pauses or resumes an entry; same-state is a conflict
}

// transfer defines methods for handling transfers.
type transfer interface {
	RecordTransfer(ctx context.Context, transfer *model.Transfer) (*model.Transfer, error) // Settles a transfer atomically (value movement + running total + replay guard)
	GetTransfer(ctx context.Context, id string) (*model.Transfer, error)
	GetTransferBySenderNonce(ctx context.Context, sender string, nonce uint64) (*model.Transfer, error)
	GetAllTransfers(ctx context.Context, limit, offset int) ([]model.Transfer, error)
	UpdateDelegationState(ctx context.Context, transferID string, from, to model.DelegationState) error // Guarded single-row transition
	GetReferralReward(ctx context.Context, entryID, referral string) (*model.ReferralReward, error)
	CollectReferralReward(ctx context.Context, entryID, referral string) (uint64, error) // Zeroes accrual and credits the referral balance
}

// computation defines methods for the confidential-computation protocol bookkeeping.
type computation interface {
	SetPendingRequest(ctx context.Context, entryID string, req *model.ComputationRequest) (*model.ComputationRequest, error) // Records the single in-flight request for an entry
	ClearPendingRequest(ctx context.Context, entryID, correlationID string) error                                            // Compensation path: aborts an issued request
	ApplyAggregationResult(ctx context.Context, entryID, correlationID string, ciphertext []byte, version uint64) error      // Guarded ciphertext swap + version bump
	ApplyRevealResult(ctx context.Context, entryID, correlationID string, revealedBool *bool, revealedCount *uint64) error   // Records a plaintext reveal, aggregate state untouched
	AbortComputation(ctx context.Context, entryID, correlationID string) error                                               // Terminal abort: clears pending, keeps state
	MarkComputationRejected(ctx context.Context, correlationID string) error                                                 // Closes a superseded request after a stale callback
	GetComputationByCorrelationID(ctx context.Context, correlationID string) (*model.ComputationRequest, error)
}

// balance defines methods for the account balance store backing value movement.
type balance interface {
	CreateBalance(ctx context.Context, accountID string, initial uint64) error
	GetBalance(ctx context.Context, accountID string) (uint64, error)
}
