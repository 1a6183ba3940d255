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
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/cloakfinance/cloak/config"
	"github.com/cloakfinance/cloak/internal/apierror"
	"github.com/cloakfinance/cloak/model"
)

// RecordTransfer settles a transfer as one atomic unit of work: the sender
// is debited the gross amount, the recipient credited the net, the treasury
// credited its fee, the referral fee accrued, the entry's running total
// advanced, and the replay nonce recorded — or none of it happens. The
// unique (sender, replay_nonce) index rejects duplicates inside the same
// transaction that would commit the state change.
func (d Datasource) RecordTransfer(ctx context.Context, transfer *model.Transfer) (*model.Transfer, error) {
	metaDataJSON, err := json.Marshal(transfer.MetaData)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	transfer.TransferID = model.GenerateUUIDWithSuffix("trf")
	transfer.DelegationState = model.DelegationNone
	transfer.CreatedAt = time.Now()

	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Entry must still be active; the running total is advanced in the same
	// statement so a paused entry cannot accept value.
	result, err := tx.ExecContext(ctx, `
		UPDATE cloak.entries
		SET running_total = running_total + $2
		WHERE entry_id = $1 AND active = TRUE
	`, transfer.EntryID, int64(transfer.GrossAmount))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update running total", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update running total", err)
	}
	if rowsAffected == 0 {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Entry is inactive or does not exist", nil)
	}

	if err := debitAccount(ctx, tx, transfer.Sender, transfer.GrossAmount); err != nil {
		return nil, err
	}
	if err := creditAccount(ctx, tx, transfer.Recipient, transfer.NetAmount); err != nil {
		return nil, err
	}
	if transfer.TreasuryFee > 0 {
		if err := creditAccount(ctx, tx, treasuryAccount(), transfer.TreasuryFee); err != nil {
			return nil, err
		}
	}
	if transfer.ReferralFee > 0 && transfer.Referral != "" {
		if err := accrueReferralReward(ctx, tx, transfer.EntryID, transfer.Referral, transfer.ReferralFee); err != nil {
			return nil, err
		}
	}

	transfer.Completed = true
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cloak.transfers
			(transfer_id, entry_id, sender, recipient, referral, gross_amount, net_amount, treasury_fee, referral_fee, replay_nonce, completed, delegation_state, meta_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, transfer.TransferID, transfer.EntryID, transfer.Sender, transfer.Recipient, transfer.Referral,
		int64(transfer.GrossAmount), int64(transfer.NetAmount), int64(transfer.TreasuryFee), int64(transfer.ReferralFee),
		int64(transfer.ReplayNonce), transfer.Completed, transfer.DelegationState, metaDataJSON, transfer.CreatedAt)
	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Replay nonce already used for this sender", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record transfer", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transfer", err)
	}

	return transfer, nil
}

// debitAccount removes amount from an account, failing when the balance
// cannot cover it. The guard is the WHERE clause, not a read-then-write.
func debitAccount(ctx context.Context, tx *sql.Tx, accountID string, amount uint64) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE cloak.balances
		SET balance = balance - $2
		WHERE account_id = $1 AND balance >= $2
	`, accountID, int64(amount))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to debit account", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to debit account", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, "Insufficient funds", nil)
	}
	return nil
}

// treasuryAccount resolves the configured treasury account, falling back to
// the shared @treasury indicator.
func treasuryAccount() string {
	cnf, err := config.Fetch()
	if err != nil || cnf.Fees.Treasury == "" {
		return "@treasury"
	}
	return cnf.Fees.Treasury
}

func creditAccount(ctx context.Context, tx *sql.Tx, accountID string, amount uint64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cloak.balances (account_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (account_id) DO UPDATE SET balance = cloak.balances.balance + EXCLUDED.balance
	`, accountID, int64(amount))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to credit account", err)
	}
	return nil
}

func accrueReferralReward(ctx context.Context, tx *sql.Tx, entryID, referral string, amount uint64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO cloak.referral_rewards (entry_id, referral, accrued, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (entry_id, referral) DO UPDATE
		SET accrued = cloak.referral_rewards.accrued + EXCLUDED.accrued, updated_at = CURRENT_TIMESTAMP
	`, entryID, referral, int64(amount))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to accrue referral reward", err)
	}
	return nil
}

func (d Datasource) GetTransfer(ctx context.Context, id string) (*model.Transfer, error) {
	return d.getTransferWhere(ctx, "transfer_id = $1", id)
}

func (d Datasource) GetTransferBySenderNonce(ctx context.Context, sender string, nonce uint64) (*model.Transfer, error) {
	return d.getTransferWhere(ctx, "sender = $1 AND replay_nonce = $2", sender, int64(nonce))
}

func (d Datasource) getTransferWhere(ctx context.Context, where string, args ...interface{}) (*model.Transfer, error) {
	transfer := model.Transfer{}

	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT transfer_id, entry_id, sender, recipient, referral, gross_amount, net_amount, treasury_fee, referral_fee, replay_nonce, completed, delegation_state, meta_data, created_at
		FROM cloak.transfers
		WHERE %s
	`, where), args...)

	var metaDataJSON []byte
	err := row.Scan(&transfer.TransferID, &transfer.EntryID, &transfer.Sender, &transfer.Recipient, &transfer.Referral,
		&transfer.GrossAmount, &transfer.NetAmount, &transfer.TreasuryFee, &transfer.ReferralFee,
		&transfer.ReplayNonce, &transfer.Completed, &transfer.DelegationState, &metaDataJSON, &transfer.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Transfer not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transfer", err)
	}

	if metaDataJSON != nil {
		err = json.Unmarshal(metaDataJSON, &transfer.MetaData)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}

	return &transfer, nil
}

func (d Datasource) GetAllTransfers(ctx context.Context, limit, offset int) ([]model.Transfer, error) {
	cacheKey := fmt.Sprintf("transfers:all:%d:%d", limit, offset)
	var transfers []model.Transfer
	if d.Cache != nil {
		err := d.Cache.Get(ctx, cacheKey, &transfers)
		if err == nil && len(transfers) > 0 {
			return transfers, nil
		}
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT transfer_id, entry_id, sender, recipient, referral, gross_amount, net_amount, treasury_fee, referral_fee, replay_nonce, completed, delegation_state, created_at
		FROM cloak.transfers
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transfers", err)
	}
	defer rows.Close()

	transfers = []model.Transfer{}
	for rows.Next() {
		transfer := model.Transfer{}
		err = rows.Scan(&transfer.TransferID, &transfer.EntryID, &transfer.Sender, &transfer.Recipient, &transfer.Referral,
			&transfer.GrossAmount, &transfer.NetAmount, &transfer.TreasuryFee, &transfer.ReferralFee,
			&transfer.ReplayNonce, &transfer.Completed, &transfer.DelegationState, &transfer.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transfer data", err)
		}
		transfers = append(transfers, transfer)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over transfers", err)
	}

	if d.Cache != nil && len(transfers) > 0 {
		_ = d.Cache.Set(ctx, cacheKey, transfers, 1*time.Minute)
	}

	return transfers, nil
}

// UpdateDelegationState performs one guarded delegation transition. The
// expected current state is part of the WHERE clause so a lost race shows
// up as zero rows, never as a silent overwrite.
func (d Datasource) UpdateDelegationState(ctx context.Context, transferID string, from, to model.DelegationState) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE cloak.transfers
		SET delegation_state = $3
		WHERE transfer_id = $1 AND delegation_state = $2
	`, transferID, from, to)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update delegation state", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update delegation state", err)
	}
	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Transfer is not in state %s", from), nil)
	}
	return nil
}

func (d Datasource) GetReferralReward(ctx context.Context, entryID, referral string) (*model.ReferralReward, error) {
	reward := model.ReferralReward{}
	row := d.Conn.QueryRowContext(ctx, `
		SELECT entry_id, referral, accrued, updated_at
		FROM cloak.referral_rewards
		WHERE entry_id = $1 AND referral = $2
	`, entryID, referral)

	err := row.Scan(&reward.EntryID, &reward.Referral, &reward.Accrued, &reward.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "No referral reward recorded", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve referral reward", err)
	}
	return &reward, nil
}

// CollectReferralReward zeroes the accrued reward and credits it to the
// referral's balance in one transaction, returning the collected amount.
func (d Datasource) CollectReferralReward(ctx context.Context, entryID, referral string) (uint64, error) {
	tx, err := d.Conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelDefault})
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var accrued int64
	row := tx.QueryRowContext(ctx, `
		SELECT accrued FROM cloak.referral_rewards
		WHERE entry_id = $1 AND referral = $2
		FOR UPDATE
	`, entryID, referral)
	if err := row.Scan(&accrued); err != nil {
		if err == sql.ErrNoRows {
			return 0, apierror.NewAPIError(apierror.ErrNotFound, "No referral reward recorded", err)
		}
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read referral reward", err)
	}
	if accrued == 0 {
		return 0, apierror.NewAPIError(apierror.ErrConflict, "No referral reward to collect", nil)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE cloak.referral_rewards
		SET accrued = 0, updated_at = CURRENT_TIMESTAMP
		WHERE entry_id = $1 AND referral = $2
	`, entryID, referral)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to zero referral reward", err)
	}

	if err := creditAccount(ctx, tx, referral, uint64(accrued)); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit referral collection", err)
	}

	return uint64(accrued), nil
}
