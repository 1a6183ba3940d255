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

	"github.com/cloakfinance/cloak/internal/apierror"
	"github.com/cloakfinance/cloak/internal/notification"
	"github.com/cloakfinance/cloak/model"
)

// CallbackResolution is what the handler did with a delivered result.
// Rejected is not an error: it tells the compute service its delivery was a
// duplicate or referred to a request that is no longer pending.
type CallbackResolution string

const (
	CallbackApplied  CallbackResolution = "APPLIED"
	CallbackRejected CallbackResolution = "REJECTED"
	CallbackAborted  CallbackResolution = "ABORTED"
)

// HandleComputeResult is the single entry point for terminal results from
// the confidential-compute service. Delivery is at-least-once and unordered;
// every path below either applies the result exactly once or degrades to a
// no-op, so redelivery can never corrupt aggregate state.
func (l *Cloak) HandleComputeResult(ctx context.Context, outcome *model.ComputeOutcome) (CallbackResolution, error) {
	ctx, span := tracer.Start(ctx, "HandleComputeResult")
	defer span.End()

	req, err := l.datasource.GetComputationByCorrelationID(ctx, outcome.CorrelationID)
	if err != nil {
		if isNotFound(err) {
			// Unknown correlation id: discard without touching state.
			return CallbackRejected, nil
		}
		return "", logAndRecordError(span, "failed to load computation ", err)
	}

	if req.Status != model.ComputationIssued {
		// Redelivery of an already-terminal result is a safe no-op.
		return CallbackRejected, nil
	}

	if !outcome.Success() {
		return l.abortComputation(ctx, req)
	}

	switch req.Kind {
	case model.ComputationInit, model.ComputationAggregate:
		return l.applyAggregation(ctx, req, outcome)
	case model.ComputationThreshold, model.ComputationCount:
		return l.applyReveal(ctx, req, outcome)
	default:
		return "", apierror.NewAPIError(apierror.ErrInternalServer, "Unknown computation kind", nil)
	}
}

func (l *Cloak) applyAggregation(ctx context.Context, req *model.ComputationRequest, outcome *model.ComputeOutcome) (CallbackResolution, error) {
	if len(outcome.Ciphertext) != model.AggregateStateSize {
		return "", apierror.NewAPIError(apierror.ErrInvalidInput, "Aggregate ciphertext has wrong size", model.ErrInvalidCiphertext)
	}

	err := l.datasource.ApplyAggregationResult(ctx, req.EntryID, req.CorrelationID, outcome.Ciphertext, outcome.Version)
	if err != nil {
		if isConflict(err) {
			// The pending marker no longer names this request or the version
			// is not newer: a stale delivery. Close the record, keep state.
			if markErr := l.datasource.MarkComputationRejected(ctx, req.CorrelationID); markErr != nil {
				notification.NotifyError(markErr)
			}
			return CallbackRejected, nil
		}
		return "", err
	}

	l.postCallbackActions(ctx, "aggregation.applied", req)
	return CallbackApplied, nil
}

func (l *Cloak) applyReveal(ctx context.Context, req *model.ComputationRequest, outcome *model.ComputeOutcome) (CallbackResolution, error) {
	err := l.datasource.ApplyRevealResult(ctx, req.EntryID, req.CorrelationID, outcome.RevealedBool, outcome.RevealedCount)
	if err != nil {
		if isConflict(err) {
			if markErr := l.datasource.MarkComputationRejected(ctx, req.CorrelationID); markErr != nil {
				notification.NotifyError(markErr)
			}
			return CallbackRejected, nil
		}
		return "", err
	}

	l.postCallbackActions(ctx, "reveal.applied", req)
	return CallbackApplied, nil
}

// abortComputation records a terminal Aborted outcome. The pending marker
// is released, aggregate state and version stay untouched, and the caller
// polling the entry sees the request gone — the aggregate simply does not
// include this update, and a fresh request may be issued.
func (l *Cloak) abortComputation(ctx context.Context, req *model.ComputationRequest) (CallbackResolution, error) {
	err := l.datasource.AbortComputation(ctx, req.EntryID, req.CorrelationID)
	if err != nil {
		if isConflict(err) {
			return CallbackRejected, nil
		}
		return "", err
	}

	l.postCallbackActions(ctx, "aggregation.aborted", req)
	return CallbackAborted, nil
}

func (l *Cloak) postCallbackActions(_ context.Context, event string, req *model.ComputationRequest) {
	go func() {
		err := SendWebhook(NewWebhook{
			Event:   event,
			Payload: req,
		})
		if err != nil {
			notification.NotifyError(err)
		}
	}()
}

func isConflict(err error) bool {
	apiErr, ok := err.(apierror.APIError)
	return ok && apiErr.Code == apierror.ErrConflict
}

func isNotFound(err error) bool {
	apiErr, ok := err.(apierror.APIError)
	return ok && apiErr.Code == apierror.ErrNotFound
}
