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

	"github.com/cloakfinance/cloak/internal/notification"
	"github.com/cloakfinance/cloak/model"
)

func (l *Cloak) postEntryActions(_ context.Context, entry *model.Entry) {
	go func() {
		err := SendWebhook(NewWebhook{
			Event:   "entry.created",
			Payload: entry,
		})
		if err != nil {
			notification.NotifyError(err)
		}
	}()
}

// CreateEntry onboards a new owner. The entry starts active with an empty
// aggregate ciphertext; the onboarding init computation is issued right
// after creation so the confidential-compute service can seed the state.
func (l *Cloak) CreateEntry(ctx context.Context, entry model.Entry) (model.Entry, error) {
	entry, err := l.datasource.CreateEntry(entry)
	if err != nil {
		return model.Entry{}, err
	}

	if _, err := l.beginComputation(ctx, entry.EntryID, model.ComputationInit, nil, 0); err != nil {
		// The entry exists and is usable; the init computation can be
		// reissued once the transport recovers.
		notification.NotifyError(err)
	}

	l.postEntryActions(ctx, &entry)
	return entry, nil
}

// PauseEntry stops an entry from accepting transfers. Pausing an already
// paused entry is a conflict.
func (l *Cloak) PauseEntry(ctx context.Context, id string) error {
	return l.datasource.UpdateEntryActive(ctx, id, false)
}

// ResumeEntry reactivates a paused entry. Resuming an active entry is a
// conflict.
func (l *Cloak) ResumeEntry(ctx context.Context, id string) error {
	return l.datasource.UpdateEntryActive(ctx, id, true)
}

func (l *Cloak) GetEntryByID(ctx context.Context, id string) (*model.Entry, error) {
	return l.datasource.GetEntryByID(ctx, id)
}

func (l *Cloak) GetEntryByOwner(ctx context.Context, owner string) (*model.Entry, error) {
	return l.datasource.GetEntryByOwner(ctx, owner)
}

func (l *Cloak) GetAllEntries(limit, offset int) ([]model.Entry, error) {
	return l.datasource.GetAllEntries(limit, offset)
}

// CreateBalance seeds an account balance, used at onboarding.
func (l *Cloak) CreateBalance(ctx context.Context, accountID string, initial uint64) error {
	return l.datasource.CreateBalance(ctx, accountID, initial)
}

func (l *Cloak) GetBalance(ctx context.Context, accountID string) (uint64, error) {
	return l.datasource.GetBalance(ctx, accountID)
}
