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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/cloakfinance/cloak/internal/apierror"
	"github.com/cloakfinance/cloak/model"
)

func expectTransferInState(mock sqlmock.Sqlmock, transferID string, state model.DelegationState, completed bool) {
	mock.ExpectQuery("SELECT transfer_id, entry_id, sender, recipient, referral, gross_amount, net_amount, treasury_fee, referral_fee, replay_nonce, completed, delegation_state, meta_data, created_at FROM cloak.transfers").
		WithArgs(transferID).
		WillReturnRows(sqlmock.NewRows(transferColumns()).
			AddRow(transferID, "ent_123", "snd", "rcp", "", 1000, 980, 14, 6, 1, completed, string(state), nil, time.Now()))
}

func TestDelegationLifecycle(t *testing.T) {
	cl, mock, _ := newTestCloak(t)
	ctx := context.Background()

	expectTransferInState(mock, "trf_1", model.DelegationNone, true)
	mock.ExpectExec("UPDATE cloak.transfers SET delegation_state").
		WithArgs("trf_1", model.DelegationNone, model.DelegationDelegated).
		WillReturnResult(sqlmock.NewResult(0, 1))

	transfer, err := cl.DelegateTransfer(ctx, "trf_1")
	assert.NoError(t, err)
	assert.Equal(t, model.DelegationDelegated, transfer.DelegationState)

	expectTransferInState(mock, "trf_1", model.DelegationDelegated, true)
	mock.ExpectExec("UPDATE cloak.transfers SET delegation_state").
		WithArgs("trf_1", model.DelegationDelegated, model.DelegationCommitted).
		WillReturnResult(sqlmock.NewResult(0, 1))

	transfer, err = cl.CommitDelegation(ctx, "trf_1")
	assert.NoError(t, err)
	assert.Equal(t, model.DelegationCommitted, transfer.DelegationState)

	expectTransferInState(mock, "trf_1", model.DelegationCommitted, true)
	mock.ExpectExec("UPDATE cloak.transfers SET delegation_state").
		WithArgs("trf_1", model.DelegationCommitted, model.DelegationIntegrated).
		WillReturnResult(sqlmock.NewResult(0, 1))

	transfer, err = cl.IntegrateTransfer(ctx, "trf_1")
	assert.NoError(t, err)
	assert.Equal(t, model.DelegationIntegrated, transfer.DelegationState)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestUndelegateAfterCommit(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	expectTransferInState(mock, "trf_1", model.DelegationCommitted, true)
	mock.ExpectExec("UPDATE cloak.transfers SET delegation_state").
		WithArgs("trf_1", model.DelegationCommitted, model.DelegationUndelegated).
		WillReturnResult(sqlmock.NewResult(0, 1))

	transfer, err := cl.UndelegateTransfer(context.Background(), "trf_1")

	assert.NoError(t, err)
	assert.Equal(t, model.DelegationUndelegated, transfer.DelegationState)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestDelegateUnexecutedTransfer(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	expectTransferInState(mock, "trf_1", model.DelegationNone, false)

	_, err := cl.DelegateTransfer(context.Background(), "trf_1")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Transfer has not been executed")
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrPreconditionFailed, apiErr.Code)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestUndelegateBeforeCommit(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	expectTransferInState(mock, "trf_1", model.DelegationDelegated, true)

	_, err := cl.UndelegateTransfer(context.Background(), "trf_1")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Delegation has not been committed")
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrPreconditionFailed, apiErr.Code)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestCommitBeforeDelegate(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	expectTransferInState(mock, "trf_1", model.DelegationNone, true)

	_, err := cl.CommitDelegation(context.Background(), "trf_1")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid delegation transition NONE -> COMMITTED")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRedelegateTerminalTransfer(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	expectTransferInState(mock, "trf_1", model.DelegationIntegrated, true)

	_, err := cl.DelegateTransfer(context.Background(), "trf_1")

	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestGetDelegationState(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	expectTransferInState(mock, "trf_1", model.DelegationCommitted, true)

	state, err := cl.GetDelegationState(context.Background(), "trf_1")

	assert.NoError(t, err)
	assert.Equal(t, model.DelegationCommitted, state)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
