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
	"time"

	"github.com/fluxwork/fluxwork/internal/store"
)

// endRun is the idempotent terminal sink described in §4.3: once a run has
// reached any terminal status, further calls are no-ops, so a retried or
// racing callback can never resurrect or overwrite a finished run.
func (e *Engine) endRun(ctx context.Context, tx store.Tx, run *store.Run, status string) error {
	if store.IsTerminalRunStatus(run.Status) {
		return nil
	}
	now := time.Now().UTC()
	run.Status = status
	run.Ended = &now
	return tx.SaveRun(ctx, run)
}

// InitiateRun transitions a pending (or prepared) run to active and
// initiates its entry step; a run in any other status is left as it is.
// A run created as "prepared" gets no initiate-run task until an update
// moves it to "pending"; nothing is done for it before then.
func (e *Engine) InitiateRun(ctx context.Context, tx store.Tx, wf *store.Workflow, run *store.Run) (*Result, error) {
	result := &Result{}
	if run.Status != store.RunPending && run.Status != store.RunPrepared {
		return result, nil
	}

	spec, err := e.loadSpecification(wf)
	if err != nil {
		return result, err
	}
	if err := spec.Verify(); err != nil {
		return result, err
	}

	run.Status = store.RunActive
	now := time.Now().UTC()
	run.Started = &now
	if err := tx.SaveRun(ctx, run); err != nil {
		return result, err
	}

	_, stepResult, err := e.InitiateStep(ctx, tx, wf, run, spec.Entry)
	if err != nil {
		return result, err
	}
	result.absorb(stepResult)
	return result, nil
}

// AbortExecutions implements the abort flow (§4.3, §4.4): every active
// execution is asked to cancel, tolerating the scheduler reporting it
// already gone. Once no active executions remain, the run moves from
// "aborting" to "aborted". Because this runs at-least-once, a handler
// invocation that finds nothing left active is expected, not an error.
func (e *Engine) AbortExecutions(ctx context.Context, tx store.Tx, run *store.Run) (*Result, error) {
	result := &Result{}

	if run.Status != store.RunAborting {
		run.Status = store.RunAborting
		if err := tx.SaveRun(ctx, run); err != nil {
			return result, err
		}
	}

	active, err := tx.ActiveExecutionsByRun(ctx, run.ID)
	if err != nil {
		return result, err
	}

	for _, exec := range active {
		if exec.Status == "aborting" {
			continue
		}
		exec.Status = "aborting"
		if err := tx.SaveExecution(ctx, exec); err != nil {
			return result, err
		}
		execID := exec.ID
		result.then(func(ctx context.Context) error {
			err := e.dispatcher.UpdateProcessStatus(ctx, execID, "canceled")
			if _, gone := asGoneError(err); gone {
				return nil
			}
			return err
		})
	}

	if err := e.settleAbortIfDry(ctx, tx, run); err != nil {
		return result, err
	}

	return result, nil
}

// settleAbortIfDry ends the run as aborted once no executions remain
// active. Both AbortExecutions and a late "aborted" process callback call
// this rather than trusting a snapshot taken earlier in the same request,
// per the resolved Open Question (§9): the active set must be re-queried,
// since a concurrent callback or a new execution can change it between
// when abort-executions enumerates and when the last abort actually lands.
func (e *Engine) settleAbortIfDry(ctx context.Context, tx store.Tx, run *store.Run) error {
	if run.Status != store.RunAborting {
		return nil
	}
	active, err := tx.ActiveExecutionsByRun(ctx, run.ID)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return e.endRun(ctx, tx, run, store.RunAborted)
	}
	return nil
}
