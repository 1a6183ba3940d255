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

// beginComputation is the computation gateway: it marks the entry pending
// and hands the submission to the queue. Marking pending comes first — if
// the submission cannot be enqueued the marker is rolled back, so a request
// is never in flight without the ledger knowing about it, and never
// recorded without having been sent.
func (l *Cloak) beginComputation(ctx context.Context, entryID string, kind model.ComputationKind, encryptedDelta []byte, threshold uint64) (*model.ComputationRequest, error) {
	ctx, span := tracer.Start(ctx, "BeginComputation")
	defer span.End()

	entry, err := l.datasource.GetEntryByID(ctx, entryID)
	if err != nil {
		return nil, err
	}

	req := &model.ComputationRequest{
		CorrelationID: model.GenerateUUIDWithSuffix("cmp"),
		Kind:          kind,
		Threshold:     threshold,
	}

	req, err = l.datasource.SetPendingRequest(ctx, entryID, req)
	if err != nil {
		return nil, logAndRecordError(span, "failed to mark request pending ", err)
	}

	submission := &model.ComputeSubmission{
		CorrelationID:  req.CorrelationID,
		EntryID:        entryID,
		Kind:           kind,
		CurrentState:   entry.AggregateState,
		EncryptedDelta: encryptedDelta,
		Threshold:      threshold,
	}
	if err := l.queue.queueComputeSubmission(submission); err != nil {
		// The request never reached the transport; release the pending
		// marker so the entry is not wedged.
		if clearErr := l.datasource.ClearPendingRequest(ctx, entryID, req.CorrelationID); clearErr != nil {
			notification.NotifyError(clearErr)
		}
		return nil, logAndRecordError(span, "failed to enqueue compute submission ", err)
	}

	return req, nil
}

// BeginAggregationRequest issues a confidential aggregation update for an
// entry. At most one computation may be pending per entry; a second call
// before the first terminal callback fails with a conflict.
func (l *Cloak) BeginAggregationRequest(ctx context.Context, entryID string, encryptedDelta []byte) (*model.ComputationRequest, error) {
	return l.beginComputation(ctx, entryID, model.ComputationAggregate, encryptedDelta, 0)
}

// BeginThresholdCheck issues a one-way reveal asking whether the
// confidential volume meets threshold. The eventual callback carries a
// plaintext boolean; aggregate state and version are not touched.
func (l *Cloak) BeginThresholdCheck(ctx context.Context, entryID string, threshold uint64) (*model.ComputationRequest, error) {
	return l.beginComputation(ctx, entryID, model.ComputationThreshold, nil, threshold)
}

// BeginCountReveal issues a one-way reveal of the confidential payment
// count as a plaintext integer.
func (l *Cloak) BeginCountReveal(ctx context.Context, entryID string) (*model.ComputationRequest, error) {
	return l.beginComputation(ctx, entryID, model.ComputationCount, nil, 0)
}

func (l *Cloak) GetComputation(ctx context.Context, correlationID string) (*model.ComputationRequest, error) {
	return l.datasource.GetComputationByCorrelationID(ctx, correlationID)
}
