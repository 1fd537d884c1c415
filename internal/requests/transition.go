// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package requests implements the request engine (§4.5): the parallel
// state machine driving human-completed forms, independent of but
// structurally similar to the run/execution machine in internal/engine.
package requests

import (
	"fmt"
	"time"

	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

// applyTransition runs _update_status (§4.5): it validates new against
// req's current status and, where a message is required or constrained,
// validates the message's author against the assignee. On success it
// mutates req in place (status, claimed/completed timestamps) and returns
// nil; on rejection req is left untouched.
func applyTransition(req *store.Request, newStatus string, message *store.Message) error {
	if req.Status == newStatus {
		return nil
	}

	if store.IsTerminalRequestStatus(req.Status) {
		return &fluxerrors.OperationError{Token: "cannot-update-with-status",
			Message: "request status " + req.Status + " is terminal"}
	}

	now := time.Now().UTC()

	switch req.Status {
	case store.RequestPrepared:
		if newStatus != store.RequestPending {
			return &fluxerrors.ValidationError{Field: "status",
				Message: fmt.Sprintf("cannot transition from %s to %s", req.Status, newStatus)}
		}

	case store.RequestPending, store.RequestClaimed:
		switch newStatus {
		case store.RequestClaimed:
			if err := validateMessageAuthor(message, req.Assignee); err != nil {
				return err
			}
			req.Claimed = &now

		case store.RequestCompleted:
			if err := validateMessageAuthor(message, req.Assignee); err != nil {
				return err
			}
			req.Completed = &now

		case store.RequestDeclined:
			if message == nil {
				return &fluxerrors.ValidationError{Field: "message",
					Message: "a message is required to decline a request"}
			}
			if err := validateMessageAuthor(message, req.Assignee); err != nil {
				return err
			}
			req.Completed = &now

		case store.RequestCanceled:
			req.Completed = &now

		default:
			return &fluxerrors.ValidationError{Field: "status",
				Message: fmt.Sprintf("cannot transition from %s to %s", req.Status, newStatus)}
		}

	default:
		return &fluxerrors.ValidationError{Field: "status",
			Message: fmt.Sprintf("cannot transition from %s to %s", req.Status, newStatus)}
	}

	req.Status = newStatus
	return nil
}

// validateMessageAuthor enforces that, when a message accompanies a
// transition, its author is the request's assignee — the only identity
// §4.5 allows to claim, complete or decline a request.
func validateMessageAuthor(message *store.Message, assignee string) error {
	if message == nil {
		return nil
	}
	if message.Author != assignee {
		return &fluxerrors.ValidationError{Field: "message.author",
			Message: "message author must be the request's assignee"}
	}
	return nil
}

// validateSlotOrder enforces §4.5's "slot_order, if provided, must be a
// permutation of slots's keys" invariant.
func validateSlotOrder(order []string, slots map[string]store.Slot) error {
	if len(order) == 0 {
		return nil
	}
	if len(order) != len(slots) {
		return &fluxerrors.ValidationError{Field: "slot_order",
			Message: "slot_order must be a permutation of the request's slots"}
	}
	seen := make(map[string]bool, len(order))
	for _, token := range order {
		if _, ok := slots[token]; !ok {
			return &fluxerrors.ValidationError{Field: "slot_order",
				Message: "slot_order must be a permutation of the request's slots"}
		}
		if seen[token] {
			return &fluxerrors.ValidationError{Field: "slot_order",
				Message: "slot_order must be a permutation of the request's slots"}
		}
		seen[token] = true
	}
	return nil
}
