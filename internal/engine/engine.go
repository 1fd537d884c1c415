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

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxwork/fluxwork/internal/cache"
	"github.com/fluxwork/fluxwork/internal/dispatcher"
	"github.com/fluxwork/fluxwork/internal/jq"
	"github.com/fluxwork/fluxwork/internal/registry"
	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
	"github.com/fluxwork/fluxwork/pkg/interpolator"
	"github.com/fluxwork/fluxwork/pkg/specification"
)

// Result collects work that must happen only after the enclosing
// transaction commits (§4.4's call_after_commit pattern): remote process
// creation, scheduler callbacks, and the like. Every engine operation
// returns one instead of performing side effects inline.
type Result struct {
	AfterCommit []func(ctx context.Context) error
}

func (r *Result) then(fn func(ctx context.Context) error) {
	r.AfterCommit = append(r.AfterCommit, fn)
}

func (r *Result) absorb(other *Result) {
	if other == nil {
		return
	}
	r.AfterCommit = append(r.AfterCommit, other.AfterCommit...)
}

// Run executes every accumulated AfterCommit callback in order, stopping
// and returning the first error. Infrastructure callers (the coordinator)
// are expected to log-and-swallow per §7's side-effect error policy rather
// than propagate this to the scheduler.
func (r *Result) Run(ctx context.Context) error {
	for _, fn := range r.AfterCommit {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Engine interprets workflow specifications against runs.
type Engine struct {
	cache      *cache.Cache
	registry   *registry.Registry
	dispatcher dispatcher.Dispatcher
	endpointFn func(runID string) string
	extractor  *jq.Executor
}

// New constructs an Engine. endpointFn builds a per-run callback URL (if
// nil, a default "/runs/<id>/task" relative path is used); the Engine keeps
// it but passes it to neither the registry nor the dispatcher, so remote
// processes report to the endpoint their operation's queue was published
// with.
func New(c *cache.Cache, reg *registry.Registry, disp dispatcher.Dispatcher, endpointFn func(string) string) *Engine {
	if endpointFn == nil {
		endpointFn = func(runID string) string { return "/runs/" + runID + "/task" }
	}
	return &Engine{cache: c, registry: reg, dispatcher: disp, endpointFn: endpointFn, extractor: jq.NewExecutor(0, 0)}
}

// extractOutput applies step.Extract (a jq expression) to the callback's
// raw output, supplementing §4.3 step 3: when the remote executor reports
// output shaped for jq rather than a flat map, this flattens it into the
// interpolation context the postoperation rules address as "${step.output}".
func (e *Engine) extractOutput(ctx context.Context, step *specification.Step, output map[string]interface{}) map[string]interface{} {
	if step.Extract == "" || output == nil {
		return output
	}
	result, err := e.extractor.Execute(ctx, step.Extract, output)
	if err != nil {
		return output
	}
	flattened, ok := result.(map[string]interface{})
	if !ok {
		return output
	}
	return flattened
}

// loadSpecification parses (or retrieves from the element cache) the
// workflow's specification document.
func (e *Engine) loadSpecification(wf *store.Workflow) (*specification.Specification, error) {
	return e.cache.GetOrParse(wf.ID, wf.Modified, []byte(wf.Specification))
}

// InitiateStep runs Step.initiate (§4.3): it allocates the next execution
// id under the run's row lock, interpolates the step's parameters against
// the operation's input descriptor, evaluates the step's preoperation
// rules, and persists the new execution as "active" — then defers asking
// the registry to create the remote process until after commit.
func (e *Engine) InitiateStep(ctx context.Context, tx store.Tx, wf *store.Workflow, run *store.Run, stepName string) (*store.WorkflowExecution, *Result, error) {
	result := &Result{}

	// 1. is_active check
	if !run.IsActive() {
		return nil, result, nil
	}

	spec, err := e.loadSpecification(wf)
	if err != nil {
		return nil, result, err
	}
	step, ok := spec.Steps[stepName]
	if !ok {
		return nil, result, &fluxerrors.OperationError{Token: "invalid-entry-step", Message: fmt.Sprintf("step %q is not declared", stepName)}
	}

	// 2. operation lookup
	op, err := e.registry.Get(ctx, step.Operation)
	if err != nil {
		return nil, result, &fluxerrors.OperationError{Token: "unknown-operation", Message: fmt.Sprintf("operation %q not registered", step.Operation)}
	}

	// 3. parameter merge: step defaults overridden by run parameters of the
	// same name, mirroring run.parameters' own merge-caller-overrides rule.
	merged := mergeParameters(step.Parameters, run.Parameters)

	env := newEnvironment(wf, run)

	// 5. interpolation against the operation's declared input descriptor
	interpolated := env.Interpolator.InterpolateValue(interpolator.FieldDescriptor(op.InputSchema), merged)
	params, _ := interpolated.(map[string]interface{})
	if params == nil {
		params = merged
	}

	// 4. execution creation under the run's row lock
	executionID, err := tx.AllocateExecutionID(ctx, run.ID)
	if err != nil {
		return nil, result, err
	}
	now := time.Now().UTC()
	exec := &store.WorkflowExecution{
		ID:          fmt.Sprintf("%s-%d", run.ID, executionID),
		RunID:       run.ID,
		ExecutionID: executionID,
		Step:        stepName,
		Name:        op.Name,
		Status:      "active",
		Started:     &now,
		Parameters:  params,
	}
	if env.Ancestor != nil {
		ancestor := env.Ancestor.ID
		exec.AncestorID = &ancestor
	}

	stepEnv := env.withStep(exec, nil)

	// 6. preoperation rules, evaluated against the about-to-start execution
	ruleResult, _, err := e.evaluateRuleList(ctx, tx, wf, run, stepEnv, step.Preoperation)
	if err != nil {
		return nil, result, err
	}
	result.absorb(ruleResult)

	// 7. mark started and persist within the caller's transaction
	if err := tx.CreateExecution(ctx, exec); err != nil {
		return nil, result, err
	}

	// 8. ask the registry to create the remote process, deferred to commit
	timeout := time.Duration(step.Timeout) * time.Second
	execID := exec.ID
	opID := op.ID
	callbackParams := params
	result.then(func(ctx context.Context) error {
		proc, err := e.registry.Initiate(ctx, opID, callbackParams, timeout)
		if err != nil {
			return fmt.Errorf("initiate execution %s: %w", execID, err)
		}
		_ = proc
		return nil
	})

	return exec, result, nil
}

// ProcessCallback runs Step.process (§4.3): it stamps the execution as
// ended, resolves the outcome (or invalidates the run if the remote
// process reported one we never declared), evaluates the step's
// postoperation rules, and finally either fails/times out the run or
// completes it once no executions remain active.
func (e *Engine) ProcessCallback(ctx context.Context, tx store.Tx, wf *store.Workflow, run *store.Run, exec *store.WorkflowExecution, status, outcomeName string, output map[string]interface{}) (*Result, error) {
	result := &Result{}

	// 1. active check — callbacks are at-least-once, so a second delivery
	// for an already-terminal execution is a silent no-op.
	if !exec.IsActive() {
		return result, nil
	}

	spec, err := e.loadSpecification(wf)
	if err != nil {
		return result, err
	}
	step, ok := spec.Steps[exec.Step]
	if !ok {
		return result, &fluxerrors.OperationError{Token: "invalid-entry-step", Message: fmt.Sprintf("step %q is not declared", exec.Step)}
	}
	op, err := e.registry.Get(ctx, step.Operation)
	if err != nil {
		return result, &fluxerrors.OperationError{Token: "unknown-operation", Message: fmt.Sprintf("operation %q not registered", step.Operation)}
	}

	// 2. stamp ended
	now := time.Now().UTC()
	exec.Ended = &now
	exec.Outcome = outcomeName

	env := newEnvironment(wf, run)
	failure := false
	invalidated := false

	// 3. switch on reported status
	switch status {
	case "completed":
		if _, declared := op.DeclaresOutcome(outcomeName); declared {
			exec.Status = "completed"
		} else {
			exec.Status = "invalidated"
			invalidated = true
		}
	case "failed":
		exec.Status = "failed"
		failure = true
	case "timedout":
		exec.Status = "timedout"
		failure = true
	case "aborted":
		exec.Status = "aborted"
	default:
		exec.Status = status
	}

	if err := tx.SaveExecution(ctx, exec); err != nil {
		return result, err
	}

	if invalidated {
		if err := e.endRun(ctx, tx, run, store.RunInvalidated); err != nil {
			return result, err
		}
		return result, nil
	}

	// An "aborted" callback only ever follows a run-level abort request
	// (§4.4's abort cascade); postoperation rules never run for it, and
	// whether the run itself settles as aborted is decided by re-querying
	// the active set, not by this single execution's arrival, since
	// abort-executions may still be cancelling siblings concurrently.
	if status == "aborted" {
		if err := e.settleAbortIfDry(ctx, tx, run); err != nil {
			return result, err
		}
		return result, nil
	}

	// 4. rule environment with the completed step in scope
	stepEnv := env.withStep(exec, e.extractOutput(ctx, step, output))

	// 5. postoperation rules
	ruleResult, ignoreFailure, err := e.evaluateRuleList(ctx, tx, wf, run, stepEnv, step.Postoperation)
	if err != nil {
		return result, err
	}
	result.absorb(ruleResult)
	if ignoreFailure {
		failure = false
	}

	// 6. failure handling
	if failure {
		target := store.RunFailed
		if status == "timedout" {
			target = store.RunTimedout
		}
		if err := e.endRun(ctx, tx, run, target); err != nil {
			return result, err
		}
		return result, nil
	}

	// 7. complete once no executions remain active
	active, err := tx.ActiveExecutionsByRun(ctx, run.ID)
	if err != nil {
		return result, err
	}
	if len(active) == 0 {
		if err := e.endRun(ctx, tx, run, store.RunCompleted); err != nil {
			return result, err
		}
	}
	return result, nil
}

// mergeParameters applies run.parameters' documented merge rule: caller
// (run) values override the step/workflow defaults, never the reverse.
func mergeParameters(defaults, overrides map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
