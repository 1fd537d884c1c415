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

package specification

import (
	"fmt"

	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

// OperationPhase is the phase an operation participates in (§3).
type OperationPhase string

const (
	PhasePreoperation  OperationPhase = "preoperation"
	PhaseOperation     OperationPhase = "operation"
	PhasePostoperation OperationPhase = "postoperation"
	PhasePrerun        OperationPhase = "prerun"
	PhasePostrun       OperationPhase = "postrun"
)

// OutcomeKind classifies a declared Outcome as success or failure (§3).
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
)

// Outcome is a named, typed success/failure result of an operation
// invocation.
type Outcome struct {
	Name        string                 `json:"name" yaml:"name"`
	Kind        OutcomeKind            `json:"outcome" yaml:"outcome"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Schema      map[string]interface{} `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// Operation is a registered remote work type (§3).
type Operation struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Phase       OperationPhase         `json:"phase"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Outcomes    map[string]Outcome     `json:"outcomes"`
}

// QueueID derives the external scheduler queue identifier for this
// operation: "flux-operation:" + id, literally as in the original
// implementation's Operation.queue_id.
func (o *Operation) QueueID() string {
	return "flux-operation:" + o.ID
}

// Validate enforces the Operation invariants of §3: outcomes must be
// non-empty, and (elsewhere, by the caller owning step references) every
// step referencing this operation must refer to a declared outcome.
func (o *Operation) Validate() error {
	if o.ID == "" {
		return &fluxerrors.ValidationError{Field: "id", Message: "operation id is required"}
	}
	if len(o.Outcomes) == 0 {
		return &fluxerrors.ValidationError{Field: "outcomes", Message: "operation must declare at least one outcome"}
	}
	for name, outcome := range o.Outcomes {
		if outcome.Kind != OutcomeSuccess && outcome.Kind != OutcomeFailure {
			return &fluxerrors.ValidationError{
				Field:   fmt.Sprintf("outcomes.%s.outcome", name),
				Message: fmt.Sprintf("outcome kind must be %q or %q", OutcomeSuccess, OutcomeFailure),
			}
		}
	}
	return nil
}

// DeclaresOutcome reports whether name is a declared outcome.
func (o *Operation) DeclaresOutcome(name string) (Outcome, bool) {
	out, ok := o.Outcomes[name]
	return out, ok
}

// InputField returns the operation's input schema as a field descriptor
// suitable for interpolator.Interpolator.InterpolateValue.
func (o *Operation) InputField() map[string]interface{} {
	return o.InputSchema
}
