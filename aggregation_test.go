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

	"github.com/cloakfinance/cloak/model"
)

func TestBeginAggregationRequest(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	expectActiveEntry(mock, "ent_123")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE cloak.entries SET pending_request_id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO cloak.computations").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	req, err := cl.BeginAggregationRequest(context.Background(), "ent_123", make([]byte, model.AggregateStateSize))

	assert.NoError(t, err)
	assert.Contains(t, req.CorrelationID, "cmp_")
	assert.Equal(t, model.ComputationAggregate, req.Kind)
	assert.Equal(t, model.ComputationIssued, req.Status)
	assert.Equal(t, "ent_123", req.EntryID)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestBeginAggregationRequestAlreadyPending(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	expectActiveEntry(mock, "ent_123")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE cloak.entries SET pending_request_id").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// Existence check distinguishes missing entry from busy entry.
	mock.ExpectQuery("SELECT entry_id, owner, active, running_total, aggregate_state, aggregate_version, pending_request_id, meta_data, created_at FROM cloak.entries").
		WithArgs("ent_123").
		WillReturnRows(sqlmock.NewRows(entryColumns()).
			AddRow("ent_123", "owner", true, 0, []byte{}, 0, "cmp_busy", nil, time.Now()))
	mock.ExpectRollback()

	_, err := cl.BeginAggregationRequest(context.Background(), "ent_123", nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "A computation request is already pending for this entry")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestBeginAggregationRequestUnknownEntry(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	mock.ExpectQuery("SELECT entry_id, owner, active, running_total, aggregate_state, aggregate_version, pending_request_id, meta_data, created_at FROM cloak.entries").
		WithArgs("ent_missing").
		WillReturnRows(sqlmock.NewRows(entryColumns()))

	_, err := cl.BeginAggregationRequest(context.Background(), "ent_missing", nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Entry not found")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestBeginAggregationRequestEnqueueFailureReleasesPending(t *testing.T) {
	cl, mock, mr := newTestCloak(t)

	expectActiveEntry(mock, "ent_123")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE cloak.entries SET pending_request_id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO cloak.computations").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	// Compensation path: the pending marker is released and the request
	// closed as aborted.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE cloak.entries SET pending_request_id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE cloak.computations").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Kill the transport before the submission is enqueued.
	mr.Close()

	_, err := cl.BeginAggregationRequest(context.Background(), "ent_123", nil)

	assert.Error(t, err)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestBeginThresholdCheck(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	expectActiveEntry(mock, "ent_123")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE cloak.entries SET pending_request_id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO cloak.computations").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	req, err := cl.BeginThresholdCheck(context.Background(), "ent_123", 5000)

	assert.NoError(t, err)
	assert.Equal(t, model.ComputationThreshold, req.Kind)
	assert.Equal(t, uint64(5000), req.Threshold)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestBeginCountReveal(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	expectActiveEntry(mock, "ent_123")
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE cloak.entries SET pending_request_id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO cloak.computations").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	req, err := cl.BeginCountReveal(context.Background(), "ent_123")

	assert.NoError(t, err)
	assert.Equal(t, model.ComputationCount, req.Kind)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
