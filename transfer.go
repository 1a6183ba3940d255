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

package cloak

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloakfinance/cloak/config"
	"github.com/cloakfinance/cloak/internal/apierror"
	redlock "github.com/cloakfinance/cloak/internal/lock"
	"github.com/cloakfinance/cloak/internal/notification"
	"github.com/cloakfinance/cloak/model"
)

var (
	tracer = otel.Tracer("cloak.transfers")
)

func logAndRecordError(span trace.Span, msg string, err error) error {
	span.RecordError(err)
	logrus.Error(msg, err)
	return err
}

// acquireLock takes the per-entry Redis lock for the duration of a transfer
// mutation. The database guards remain authoritative; the lock only keeps
// concurrent writers from burning transaction retries against each other.
func (l *Cloak) acquireLock(ctx context.Context, entryID string) (*redlock.Locker, error) {
	locker := redlock.NewLocker(l.redis, fmt.Sprintf("entry:%s", entryID), model.GenerateUUIDWithSuffix("loc"))
	err := locker.Lock(ctx, 30*time.Second)
	if err != nil {
		return nil, err
	}
	return locker, nil
}

func releaseLock(ctx context.Context, locker *redlock.Locker) {
	if err := locker.Unlock(ctx); err != nil {
		notification.NotifyError(err)
	}
}

func (l *Cloak) postTransferActions(_ context.Context, transfer *model.Transfer) {
	go func() {
		err := SendWebhook(NewWebhook{
			Event:   "transfer.applied",
			Payload: transfer,
		})
		if err != nil {
			notification.NotifyError(err)
		}
	}()
}

// validateTransfer computes the fee split and rejects the transfer before
// any state is touched. The split is stored on the transfer record and
// never re-derived.
func (l *Cloak) validateTransfer(transfer *model.Transfer) error {
	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	net, treasuryFee, referralFee, err := model.SplitFees(transfer.GrossAmount, cnf.Fees.TreasuryBps, cnf.Fees.ReferralBps)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}

	transfer.NetAmount = net
	transfer.TreasuryFee = treasuryFee
	transfer.ReferralFee = referralFee
	return nil
}

// ApplyTransfer settles a transfer synchronously: fee split, sender debit,
// recipient/treasury credits, referral accrual, running-total bump and
// replay-nonce record, all in one atomic unit of work. The confidential
// aggregate is not touched; use ApplyTransferConfidential for that.
func (l *Cloak) ApplyTransfer(ctx context.Context, transfer *model.Transfer) (*model.Transfer, error) {
	ctx, span := tracer.Start(ctx, "ApplyTransfer")
	defer span.End()

	entry, err := l.datasource.GetEntryByID(ctx, transfer.EntryID)
	if err != nil {
		return nil, err
	}
	if !entry.Active {
		return nil, apierror.NewAPIError(apierror.ErrConflict, "Entry is paused", nil)
	}

	if err := l.validateTransfer(transfer); err != nil {
		return nil, logAndRecordError(span, "transfer validation failed ", err)
	}

	if _, err := model.AddRunningTotal(entry.RunningTotal, transfer.GrossAmount); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}

	locker, err := l.acquireLock(ctx, transfer.EntryID)
	if err != nil {
		return nil, logAndRecordError(span, "failed to acquire lock ", err)
	}
	defer releaseLock(ctx, locker)

	applied, err := l.datasource.RecordTransfer(ctx, transfer)
	if err != nil {
		return nil, logAndRecordError(span, "failed to record transfer ", err)
	}

	l.postTransferActions(ctx, applied)
	return applied, nil
}

// ApplyTransferConfidential settles the transfer and then issues the
// confidential aggregation update carrying the caller-encrypted delta. The
// two steps are deliberately not atomic: the value settlement is final once
// recorded, and a failed aggregation step is a recoverable condition the
// caller can retry with a fresh request.
func (l *Cloak) ApplyTransferConfidential(ctx context.Context, transfer *model.Transfer, encryptedDelta []byte) (*model.Transfer, *model.ComputationRequest, error) {
	ctx, span := tracer.Start(ctx, "ApplyTransferConfidential")
	defer span.End()

	applied, err := l.ApplyTransfer(ctx, transfer)
	if err != nil {
		return nil, nil, err
	}

	req, err := l.BeginAggregationRequest(ctx, applied.EntryID, encryptedDelta)
	if err != nil {
		// The transfer has already settled; surface the aggregation failure
		// without undoing the value movement.
		span.RecordError(err)
		return applied, nil, err
	}

	return applied, req, nil
}

func (l *Cloak) GetTransfer(ctx context.Context, id string) (*model.Transfer, error) {
	return l.datasource.GetTransfer(ctx, id)
}

func (l *Cloak) GetTransferBySenderNonce(ctx context.Context, sender string, nonce uint64) (*model.Transfer, error) {
	return l.datasource.GetTransferBySenderNonce(ctx, sender, nonce)
}

func (l *Cloak) GetAllTransfers(ctx context.Context, limit, offset int) ([]model.Transfer, error) {
	return l.datasource.GetAllTransfers(ctx, limit, offset)
}

func (l *Cloak) GetReferralReward(ctx context.Context, entryID, referral string) (*model.ReferralReward, error) {
	return l.datasource.GetReferralReward(ctx, entryID, referral)
}

// CollectReferralReward pays out the accrued referral fees for an entry to
// the referral's balance and zeroes the accrual.
func (l *Cloak) CollectReferralReward(ctx context.Context, entryID, referral string) (uint64, error) {
	ctx, span := tracer.Start(ctx, "CollectReferralReward")
	defer span.End()

	amount, err := l.datasource.CollectReferralReward(ctx, entryID, referral)
	if err != nil {
		return 0, logAndRecordError(span, "failed to collect referral reward ", err)
	}
	return amount, nil
}
