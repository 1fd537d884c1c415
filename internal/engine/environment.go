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

// Package engine implements the workflow engine (§4.3): it interprets a
// parsed specification against a run, initiating and completing
// executions and evaluating the rule lists that connect them.
package engine

import (
	"github.com/fluxwork/fluxwork/internal/store"
	"github.com/fluxwork/fluxwork/pkg/interpolator"
)

// Environment is the evaluation context rule conditions and action
// interpolation run against (§4.3). It is rebuilt, not mutated in place,
// each time a step is entered or completed.
type Environment struct {
	Workflow     *store.Workflow
	Run          *store.Run
	Interpolator *interpolator.Interpolator
	Output       map[string]interface{}
	Ancestor     *store.WorkflowExecution
	Failure      bool
}

// newEnvironment builds the base environment for a run: everything a rule
// condition or action can address via "${run.*}".
func newEnvironment(wf *store.Workflow, run *store.Run) *Environment {
	ctx := interpolator.Context{
		"run": map[string]interface{}{
			"id":         run.ID,
			"name":       run.Name,
			"status":     run.Status,
			"parameters": run.Parameters,
		},
	}
	return &Environment{Workflow: wf, Run: run, Interpolator: interpolator.New(ctx)}
}

// withStep returns a derived environment that also exposes the given
// execution under "${step.*}", the way §4.2 describes the nested context.
func (e *Environment) withStep(exec *store.WorkflowExecution, output map[string]interface{}) *Environment {
	stepCtx := map[string]interface{}{
		"id":         exec.ID,
		"name":       exec.Name,
		"status":     exec.Status,
		"outcome":    exec.Outcome,
		"parameters": exec.Parameters,
	}
	if output != nil {
		stepCtx["output"] = output
	}
	ne := *e
	ne.Interpolator = e.Interpolator.Merge(interpolator.Context{"step": stepCtx})
	ne.Ancestor = exec
	ne.Output = output
	return &ne
}

// withValues returns a derived environment whose interpolator context has
// been merged with values, for the update-environment action (§4.3).
func (e *Environment) withValues(values map[string]interface{}) *Environment {
	ne := *e
	ne.Interpolator = e.Interpolator.Merge(values)
	return &ne
}
