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

	"github.com/cloakfinance/cloak/internal/apierror"
	"github.com/cloakfinance/cloak/model"
)

// CreateEntry inserts a new ledger entry. The aggregate ciphertext starts
// empty; the onboarding init computation seeds it through the callback path.
func (d Datasource) CreateEntry(entry model.Entry) (model.Entry, error) {
	metaDataJSON, err := json.Marshal(entry.MetaData)
	if err != nil {
		return model.Entry{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	entry.EntryID = model.GenerateUUIDWithSuffix("ent")
	entry.Active = true
	entry.CreatedAt = time.Now()

	_, err = d.Conn.Exec(`
		INSERT INTO cloak.entries (entry_id, owner, active, aggregate_state, meta_data)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.EntryID, entry.Owner, entry.Active, entry.AggregateState, metaDataJSON)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return model.Entry{}, apierror.NewAPIError(apierror.ErrConflict, "Entry for this owner already exists", err)
			default:
				return model.Entry{}, apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return model.Entry{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create entry", err)
	}

	return entry, nil
}

func (d Datasource) GetEntryByID(ctx context.Context, id string) (*model.Entry, error) {
	entry, err := d.getEntryWhere(ctx, "entry_id = $1", id)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (d Datasource) GetEntryByOwner(ctx context.Context, owner string) (*model.Entry, error) {
	return d.getEntryWhere(ctx, "owner = $1", owner)
}

func (d Datasource) getEntryWhere(ctx context.Context, where string, arg interface{}) (*model.Entry, error) {
	entry := model.Entry{}

	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT entry_id, owner, active, running_total, aggregate_state, aggregate_version, pending_request_id, meta_data, created_at
		FROM cloak.entries
		WHERE %s
	`, where), arg)

	var metaDataJSON []byte
	var pendingRequestID sql.NullString
	err := row.Scan(&entry.EntryID, &entry.Owner, &entry.Active, &entry.RunningTotal, &entry.AggregateState, &entry.AggregateVersion, &pendingRequestID, &metaDataJSON, &entry.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Entry not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve entry", err)
	}

	if pendingRequestID.Valid {
		entry.PendingRequestID = pendingRequestID.String
	}

	if metaDataJSON != nil {
		err = json.Unmarshal(metaDataJSON, &entry.MetaData)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}

	return &entry, nil
}

func (d Datasource) GetAllEntries(limit, offset int) ([]model.Entry, error) {
	rows, err := d.Conn.Query(`
		SELECT entry_id, owner, active, running_total, aggregate_version, pending_request_id, created_at
		FROM cloak.entries
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve entries", err)
	}
	defer rows.Close()

	entries := []model.Entry{}

	for rows.Next() {
		entry := model.Entry{}
		var pendingRequestID sql.NullString
		err = rows.Scan(&entry.EntryID, &entry.Owner, &entry.Active, &entry.RunningTotal, &entry.AggregateVersion, &pendingRequestID, &entry.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan entry data", err)
		}
		if pendingRequestID.Valid {
			entry.PendingRequestID = pendingRequestID.String
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over entries", err)
	}

	return entries, nil
}

// UpdateEntryActive flips the activity flag. Setting the flag to its current
// value is a conflict, surfaced with a direction-specific message so caller
// bugs are visible.
func (d Datasource) UpdateEntryActive(ctx context.Context, id string, active bool) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE cloak.entries
		SET active = $2
		WHERE entry_id = $1 AND active <> $2
	`, id, active)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update entry", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update entry", err)
	}
	if rowsAffected == 0 {
		if _, err := d.GetEntryByID(ctx, id); err != nil {
			return err
		}
		if active {
			return apierror.NewAPIError(apierror.ErrConflict, "Entry is already active", nil)
		}
		return apierror.NewAPIError(apierror.ErrConflict, "Entry is already paused", nil)
	}

	return nil
}
