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

	"github.com/cloakfinance/cloak/internal/apierror"
	"github.com/cloakfinance/cloak/model"
)

// transitionDelegation performs one guarded delegation transition. Each
// transition is a single atomic field write; nothing is retried — a failed
// precondition is reported to the caller, who must re-issue after fixing it.
func (l *Cloak) transitionDelegation(ctx context.Context, transferID string, from, to model.DelegationState, requireCompleted bool) (*model.Transfer, error) {
	transfer, err := l.datasource.GetTransfer(ctx, transferID)
	if err != nil {
		return nil, err
	}

	if requireCompleted && !transfer.Completed {
		return nil, apierror.NewAPIError(apierror.ErrPreconditionFailed, "Transfer has not been executed", nil)
	}
	if !transfer.DelegationState.CanTransitionTo(to) || transfer.DelegationState != from {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("Invalid delegation transition %s -> %s", transfer.DelegationState, to), nil)
	}

	if err := l.datasource.UpdateDelegationState(ctx, transferID, from, to); err != nil {
		return nil, err
	}

	transfer.DelegationState = to
	return transfer, nil
}

// DelegateTransfer hands settlement authority for a completed transfer to
// the external accelerator.
func (l *Cloak) DelegateTransfer(ctx context.Context, transferID string) (*model.Transfer, error) {
	return l.transitionDelegation(ctx, transferID, model.DelegationNone, model.DelegationDelegated, true)
}

// CommitDelegation acknowledges that the accelerator has committed the
// delegated state.
func (l *Cloak) CommitDelegation(ctx context.Context, transferID string) (*model.Transfer, error) {
	return l.transitionDelegation(ctx, transferID, model.DelegationDelegated, model.DelegationCommitted, false)
}

// UndelegateTransfer reclaims settlement authority. Only a committed
// delegation can be reclaimed.
func (l *Cloak) UndelegateTransfer(ctx context.Context, transferID string) (*model.Transfer, error) {
	transfer, err := l.transitionDelegation(ctx, transferID, model.DelegationCommitted, model.DelegationUndelegated, false)
	if err != nil && isConflict(err) {
		return nil, apierror.NewAPIError(apierror.ErrPreconditionFailed, "Delegation has not been committed", err)
	}
	return transfer, err
}

// IntegrateTransfer finalizes a committed delegation into the terminal
// integrated state. The transfer must have been executed.
func (l *Cloak) IntegrateTransfer(ctx context.Context, transferID string) (*model.Transfer, error) {
	return l.transitionDelegation(ctx, transferID, model.DelegationCommitted, model.DelegationIntegrated, true)
}

// GetDelegationState reports the delegation state for a transfer.
func (l *Cloak) GetDelegationState(ctx context.Context, transferID string) (model.DelegationState, error) {
	transfer, err := l.datasource.GetTransfer(ctx, transferID)
	if err != nil {
		return "", err
	}
	return transfer.DelegationState, nil
}
