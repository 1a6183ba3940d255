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
package model

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/cloakfinance/cloak/model"
)

// CreateEntry is the request body for onboarding a new ledger entry.
type CreateEntry struct {
	Owner    string                 `json:"owner"`
	MetaData map[string]interface{} `json:"meta_data"`
}

// RecordTransfer is the request body for both plain and confidential
// transfers. EncryptedDelta is base64 in JSON and only consumed by the
// confidential route.
type RecordTransfer struct {
	EntryID        string                 `json:"entry_id"`
	Sender         string                 `json:"sender"`
	Recipient      string                 `json:"recipient"`
	Referral       string                 `json:"referral"`
	Amount         uint64                 `json:"amount"`
	ReplayNonce    uint64                 `json:"replay_nonce"`
	EncryptedDelta []byte                 `json:"encrypted_delta,omitempty"`
	MetaData       map[string]interface{} `json:"meta_data"`
}

// AggregationRequest carries the caller-encrypted delta for a standalone
// aggregation update.
type AggregationRequest struct {
	EncryptedDelta []byte `json:"encrypted_delta"`
}

// ThresholdCheck asks whether the confidential volume meets Threshold.
type ThresholdCheck struct {
	Threshold uint64 `json:"threshold"`
}

// ComputeCallback is the body the confidential-compute service posts back
// with a terminal result.
type ComputeCallback struct {
	CorrelationID string  `json:"correlation_id"`
	Outcome       string  `json:"outcome"`
	Ciphertext    []byte  `json:"ciphertext,omitempty"`
	Version       uint64  `json:"version,omitempty"`
	RevealedBool  *bool   `json:"revealed_bool,omitempty"`
	RevealedCount *uint64 `json:"revealed_count,omitempty"`
}

// CreateBalance seeds an account balance.
type CreateBalance struct {
	AccountID string `json:"account_id"`
	Balance   uint64 `json:"balance"`
}

func (e *CreateEntry) ValidateCreateEntry() error {
	return validation.ValidateStruct(e,
		validation.Field(&e.Owner, validation.Required),
	)
}

func (t *RecordTransfer) ValidateRecordTransfer() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.EntryID, validation.Required),
		validation.Field(&t.Sender, validation.Required),
		validation.Field(&t.Recipient, validation.Required),
		validation.Field(&t.Amount, validation.Required),
	)
}

func (a *AggregationRequest) ValidateAggregationRequest() error {
	return validation.ValidateStruct(a,
		validation.Field(&a.EncryptedDelta, validation.Required),
	)
}

func (t *ThresholdCheck) ValidateThresholdCheck() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.Threshold, validation.Required),
	)
}

func (cb *ComputeCallback) ValidateComputeCallback() error {
	return validation.ValidateStruct(cb,
		validation.Field(&cb.CorrelationID, validation.Required),
		validation.Field(&cb.Outcome, validation.Required, validation.In(model.OutcomeSuccess, model.OutcomeAborted)),
		validation.Field(&cb.Ciphertext, validation.When(cb.Outcome == model.OutcomeSuccess && len(cb.Ciphertext) > 0, validation.By(func(value interface{}) error {
			if len(cb.Ciphertext) != model.AggregateStateSize {
				return errors.New("ciphertext must be exactly the aggregate state size")
			}
			return nil
		}))),
	)
}

func (b *CreateBalance) ValidateCreateBalance() error {
	return validation.ValidateStruct(b,
		validation.Field(&b.AccountID, validation.Required),
	)
}

func (e *CreateEntry) ToEntry() model.Entry {
	return model.Entry{Owner: e.Owner, MetaData: e.MetaData}
}

func (t *RecordTransfer) ToTransfer() *model.Transfer {
	return &model.Transfer{
		EntryID:     t.EntryID,
		Sender:      t.Sender,
		Recipient:   t.Recipient,
		Referral:    t.Referral,
		GrossAmount: t.Amount,
		ReplayNonce: t.ReplayNonce,
		MetaData:    t.MetaData,
	}
}

func (cb *ComputeCallback) ToOutcome() *model.ComputeOutcome {
	return &model.ComputeOutcome{
		CorrelationID: cb.CorrelationID,
		Outcome:       cb.Outcome,
		Ciphertext:    cb.Ciphertext,
		Version:       cb.Version,
		RevealedBool:  cb.RevealedBool,
		RevealedCount: cb.RevealedCount,
	}
}
