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

// Package registry manages remote operation definitions: it persists them,
// publishes their queue to the scheduler so remote work can be routed back
// to us, and initiates remote processes on the engine's behalf.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fluxwork/fluxwork/internal/dispatcher"
	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
	"github.com/fluxwork/fluxwork/pkg/specification"
)

// Registry persists operation definitions and publishes their queues;
// Create and Update publish endpointFn(<id>) (by default
// "/operations/<id>/process") as the queue's callback target.
type Registry struct {
	mu         sync.RWMutex
	store      store.OperationStore
	dispatcher dispatcher.Dispatcher
	endpointFn func(operationID string) string
}

// New returns a Registry backed by store for persistence and dispatcher for
// publishing queues to the scheduler. endpointFn builds the public callback
// URL for a given operation ID; if nil, a default "/operations/<id>/process"
// relative path is used.
func New(st store.OperationStore, disp dispatcher.Dispatcher, endpointFn func(string) string) *Registry {
	if endpointFn == nil {
		endpointFn = func(id string) string { return "/operations/" + id + "/process" }
	}
	return &Registry{store: st, dispatcher: disp, endpointFn: endpointFn}
}

// Create persists op and publishes its queue to the scheduler so remote
// processes tagged with op.QueueID() get routed back to our process
// endpoint.
func (r *Registry) Create(ctx context.Context, op *specification.Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := toRecord(op)
	if err != nil {
		return err
	}
	if err := r.store.Create(ctx, rec); err != nil {
		return err
	}

	return r.dispatcher.CreateQueue(ctx, dispatcher.Queue{
		QueueID:  op.QueueID(),
		Subject:  op.ID,
		Name:     op.Name,
		Endpoint: r.endpointFn(op.ID),
	})
}

// Update persists a changed operation definition and re-publishes its
// queue, since the endpoint or name may have changed.
func (r *Registry) Update(ctx context.Context, op *specification.Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := toRecord(op)
	if err != nil {
		return err
	}
	if err := r.store.Update(ctx, rec); err != nil {
		return err
	}

	return r.dispatcher.CreateQueue(ctx, dispatcher.Queue{
		QueueID:  op.QueueID(),
		Subject:  op.ID,
		Name:     op.Name,
		Endpoint: r.endpointFn(op.ID),
	})
}

// Get loads an operation definition by ID.
func (r *Registry) Get(ctx context.Context, id string) (*specification.Operation, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromRecord(rec)
}

// List returns operation definitions, optionally filtered by phase.
func (r *Registry) List(ctx context.Context, phase specification.OperationPhase) ([]*specification.Operation, error) {
	recs, err := r.store.List(ctx, store.OperationFilter{Phase: string(phase)})
	if err != nil {
		return nil, err
	}
	out := make([]*specification.Operation, 0, len(recs))
	for _, rec := range recs {
		op, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, nil
}

// Initiate asks the scheduler to create a remote process for the operation
// identified by id, submitting input as its payload.
func (r *Registry) Initiate(ctx context.Context, id string, input map[string]interface{}, timeout time.Duration) (*dispatcher.Process, error) {
	op, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.dispatcher.CreateProcess(ctx, dispatcher.CreateProcessRequest{
		QueueID: op.QueueID(),
		Input:   input,
		Timeout: timeout,
	})
}

func toRecord(op *specification.Operation) (*store.OperationRecord, error) {
	inputSchema, err := json.Marshal(op.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("marshal input schema: %w", err)
	}
	parameters, err := json.Marshal(op.Parameters)
	if err != nil {
		return nil, fmt.Errorf("marshal parameters: %w", err)
	}
	outcomes, err := json.Marshal(op.Outcomes)
	if err != nil {
		return nil, fmt.Errorf("marshal outcomes: %w", err)
	}
	return &store.OperationRecord{
		ID:              op.ID,
		Name:            op.Name,
		Phase:           string(op.Phase),
		Description:     op.Description,
		InputSchemaJSON: inputSchema,
		ParametersJSON:  parameters,
		OutcomesJSON:    outcomes,
	}, nil
}

func fromRecord(rec *store.OperationRecord) (*specification.Operation, error) {
	op := &specification.Operation{
		ID:          rec.ID,
		Name:        rec.Name,
		Phase:       specification.OperationPhase(rec.Phase),
		Description: rec.Description,
	}
	if len(rec.InputSchemaJSON) > 0 {
		if err := json.Unmarshal(rec.InputSchemaJSON, &op.InputSchema); err != nil {
			return nil, &fluxerrors.ValidationError{Field: "input_schema", Message: err.Error()}
		}
	}
	if len(rec.ParametersJSON) > 0 {
		if err := json.Unmarshal(rec.ParametersJSON, &op.Parameters); err != nil {
			return nil, &fluxerrors.ValidationError{Field: "parameters", Message: err.Error()}
		}
	}
	if len(rec.OutcomesJSON) > 0 {
		if err := json.Unmarshal(rec.OutcomesJSON, &op.Outcomes); err != nil {
			return nil, &fluxerrors.ValidationError{Field: "outcomes", Message: err.Error()}
		}
	}
	return op, nil
}
