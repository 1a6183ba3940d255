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
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/cloakfinance/cloak/internal/apierror"
	"github.com/cloakfinance/cloak/model"
)

// SetPendingRequest records req as the single in-flight computation for an
// entry. The pending marker and the computation row are written in one
// transaction; the `pending_request_id IS NULL` guard is what enforces the
// one-request-per-entry invariant.
func (d Datasource) SetPendingRequest(ctx context.Context, entryID string, req *model.ComputationRequest) (*model.ComputationRequest, error) {
	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE cloak.entries
		SET pending_request_id = $2
		WHERE entry_id = $1 AND pending_request_id IS NULL
	`, entryID, req.CorrelationID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark request pending", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark request pending", err)
	}
	if rowsAffected == 0 {
		if _, err := d.GetEntryByID(ctx, entryID); err != nil {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrConflict, "A computation request is already pending for this entry", nil)
	}

	req.EntryID = entryID
	req.Status = model.ComputationIssued
	req.IssuedAt = time.Now()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cloak.computations (correlation_id, entry_id, kind, status, threshold, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, req.CorrelationID, req.EntryID, req.Kind, req.Status, int64(req.Threshold), req.IssuedAt)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Correlation id already used", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record computation request", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit computation request", err)
	}

	return req, nil
}

// ClearPendingRequest is the compensation path for a request that was marked
// pending but never handed to the transport. The request is closed as
// ABORTED so its correlation id can never be applied later.
func (d Datasource) ClearPendingRequest(ctx context.Context, entryID, correlationID string) error {
	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := clearPending(ctx, tx, entryID, correlationID); err != nil {
		return err
	}
	if err := closeComputation(ctx, tx, correlationID, model.ComputationAborted, nil, nil); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit", err)
	}
	return nil
}

// ApplyAggregationResult swaps in the new aggregate ciphertext. It succeeds
// only when correlationID is the entry's pending request and the delivered
// version is strictly newer — the monotonic replay guard. A failed guard is
// reported as a conflict and leaves every column untouched, which is what
// makes redelivery of an already-applied result a safe no-op.
func (d Datasource) ApplyAggregationResult(ctx context.Context, entryID, correlationID string, ciphertext []byte, version uint64) error {
	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE cloak.entries
		SET aggregate_state = $3, aggregate_version = $4, pending_request_id = NULL
		WHERE entry_id = $1 AND pending_request_id = $2 AND aggregate_version < $4
	`, entryID, correlationID, ciphertext, int64(version))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to apply aggregation result", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to apply aggregation result", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, "Stale or unknown callback", nil)
	}

	if err := closeComputation(ctx, tx, correlationID, model.ComputationApplied, nil, nil); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit aggregation result", err)
	}
	return nil
}

// ApplyRevealResult records the plaintext scalar of a reveal computation and
// releases the pending marker. Aggregate state and version are not touched.
func (d Datasource) ApplyRevealResult(ctx context.Context, entryID, correlationID string, revealedBool *bool, revealedCount *uint64) error {
	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := clearPending(ctx, tx, entryID, correlationID); err != nil {
		return err
	}
	if err := closeComputation(ctx, tx, correlationID, model.ComputationApplied, revealedBool, revealedCount); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit reveal result", err)
	}
	return nil
}

// AbortComputation handles a terminal Aborted outcome: the pending marker is
// released and the request closed, aggregate state and version stay as they
// were so the caller can retry with a fresh request.
func (d Datasource) AbortComputation(ctx context.Context, entryID, correlationID string) error {
	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := clearPending(ctx, tx, entryID, correlationID); err != nil {
		return err
	}
	if err := closeComputation(ctx, tx, correlationID, model.ComputationAborted, nil, nil); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit abort", err)
	}
	return nil
}

func clearPending(ctx context.Context, tx *sql.Tx, entryID, correlationID string) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE cloak.entries
		SET pending_request_id = NULL
		WHERE entry_id = $1 AND pending_request_id = $2
	`, entryID, correlationID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to clear pending request", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to clear pending request", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, "Stale or unknown callback", nil)
	}
	return nil
}

func closeComputation(ctx context.Context, tx *sql.Tx, correlationID string, status model.ComputationStatus, revealedBool *bool, revealedCount *uint64) error {
	var revealedCountArg interface{}
	if revealedCount != nil {
		revealedCountArg = int64(*revealedCount)
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE cloak.computations
		SET status = $2, revealed_bool = $3, revealed_count = $4, completed_at = CURRENT_TIMESTAMP
		WHERE correlation_id = $1 AND status = 'ISSUED'
	`, correlationID, status, revealedBool, revealedCountArg)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to close computation", err)
	}
	return nil
}

// MarkComputationRejected closes a still-issued computation as REJECTED. It
// is used when a callback names a correlation id that is no longer pending.
func (d Datasource) MarkComputationRejected(ctx context.Context, correlationID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE cloak.computations
		SET status = $2, completed_at = CURRENT_TIMESTAMP
		WHERE correlation_id = $1 AND status = 'ISSUED'
	`, correlationID, model.ComputationRejected)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark computation rejected", err)
	}
	return nil
}

func (d Datasource) GetComputationByCorrelationID(ctx context.Context, correlationID string) (*model.ComputationRequest, error) {
	req := model.ComputationRequest{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT correlation_id, entry_id, kind, status, threshold, revealed_bool, revealed_count, issued_at, completed_at
		FROM cloak.computations
		WHERE correlation_id = $1
	`, correlationID)

	var threshold int64
	var revealedBool sql.NullBool
	var revealedCount sql.NullInt64
	var completedAt sql.NullTime
	err := row.Scan(&req.CorrelationID, &req.EntryID, &req.Kind, &req.Status, &threshold, &revealedBool, &revealedCount, &req.IssuedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Computation not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve computation", err)
	}

	req.Threshold = uint64(threshold)
	if revealedBool.Valid {
		req.RevealedBool = &revealedBool.Bool
	}
	if revealedCount.Valid {
		count := uint64(revealedCount.Int64)
		req.RevealedCount = &count
	}
	if completedAt.Valid {
		req.CompletedAt = &completedAt.Time
	}

	return &req, nil
}

// CreateBalance seeds an account balance row; used at onboarding and by tests.
func (d Datasource) CreateBalance(ctx context.Context, accountID string, initial uint64) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO cloak.balances (account_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO NOTHING
	`, accountID, int64(initial))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create balance", err)
	}
	return nil
}

func (d Datasource) GetBalance(ctx context.Context, accountID string) (uint64, error) {
	var balance int64
	row := d.Conn.QueryRowContext(ctx, `
		SELECT balance FROM cloak.balances WHERE account_id = $1
	`, accountID)
	if err := row.Scan(&balance); err != nil {
		if err == sql.ErrNoRows {
			return 0, apierror.NewAPIError(apierror.ErrNotFound, "Account not found", err)
		}
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve balance", err)
	}
	return uint64(balance), nil
}
