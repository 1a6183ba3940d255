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
	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"

	"github.com/cloakfinance/cloak/internal/apierror"
	"github.com/cloakfinance/cloak/model"
)

func entryColumns() []string {
	return []string{"entry_id", "owner", "active", "running_total", "aggregate_state", "aggregate_version", "pending_request_id", "meta_data", "created_at"}
}

func TestCreateEntry(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	owner := gofakeit.UUID()
	entry := model.Entry{Owner: owner, AggregateState: make([]byte, model.AggregateStateSize)}

	mock.ExpectExec("INSERT INTO cloak.entries").
		WillReturnResult(sqlmock.NewResult(1, 1))

	// Onboarding issues the init computation right after the insert.
	mock.ExpectQuery("SELECT entry_id, owner, active, running_total, aggregate_state, aggregate_version, pending_request_id, meta_data, created_at FROM cloak.entries").
		WillReturnRows(sqlmock.NewRows(entryColumns()).
			AddRow("ent_123", owner, true, 0, make([]byte, model.AggregateStateSize), 0, nil, nil, time.Now()))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE cloak.entries SET pending_request_id").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO cloak.computations").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := cl.CreateEntry(context.Background(), entry)

	assert.NoError(t, err)
	assert.Contains(t, result.EntryID, "ent_")
	assert.True(t, result.Active)
	assert.WithinDuration(t, time.Now(), result.CreatedAt, time.Second)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestCreateEntryDuplicateOwner(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	mock.ExpectExec("INSERT INTO cloak.entries").
		WillReturnError(&pqUniqueViolation)

	_, err := cl.CreateEntry(context.Background(), model.Entry{Owner: gofakeit.UUID()})

	assert.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	assert.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPauseEntry(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	mock.ExpectExec("UPDATE cloak.entries SET active").
		WithArgs("ent_123", false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := cl.PauseEntry(context.Background(), "ent_123")
	assert.NoError(t, err)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestPauseEntryAlreadyPaused(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	mock.ExpectExec("UPDATE cloak.entries SET active").
		WithArgs("ent_123", false).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT entry_id, owner, active, running_total, aggregate_state, aggregate_version, pending_request_id, meta_data, created_at FROM cloak.entries").
		WithArgs("ent_123").
		WillReturnRows(sqlmock.NewRows(entryColumns()).
			AddRow("ent_123", "owner", false, 0, []byte{}, 0, nil, nil, time.Now()))

	err := cl.PauseEntry(context.Background(), "ent_123")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Entry is already paused")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestResumeEntryAlreadyActive(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	mock.ExpectExec("UPDATE cloak.entries SET active").
		WithArgs("ent_123", true).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT entry_id, owner, active, running_total, aggregate_state, aggregate_version, pending_request_id, meta_data, created_at FROM cloak.entries").
		WithArgs("ent_123").
		WillReturnRows(sqlmock.NewRows(entryColumns()).
			AddRow("ent_123", "owner", true, 0, []byte{}, 0, nil, nil, time.Now()))

	err := cl.ResumeEntry(context.Background(), "ent_123")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Entry is already active")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestGetEntryByID(t *testing.T) {
	cl, mock, _ := newTestCloak(t)

	state := make([]byte, model.AggregateStateSize)
	mock.ExpectQuery("SELECT entry_id, owner, active, running_total, aggregate_state, aggregate_version, pending_request_id, meta_data, created_at FROM cloak.entries").
		WithArgs("ent_123").
		WillReturnRows(sqlmock.NewRows(entryColumns()).
			AddRow("ent_123", "owner", true, 500, state, 3, "cmp_abc", []byte(`{"key":"value"}`), time.Now()))

	entry, err := cl.GetEntryByID(context.Background(), "ent_123")

	assert.NoError(t, err)
	assert.Equal(t, uint64(3), entry.AggregateVersion)
	assert.True(t, entry.HasPendingRequest())
	assert.Equal(t, "value", entry.MetaData["key"])

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
