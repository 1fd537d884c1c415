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

// Package coordinator implements the execution coordinator (§4.4): the
// unit-of-work discipline that wraps every engine operation in a locked
// transaction, brackets the risky part (rule evaluation, remote calls) in
// a savepoint so a mid-flight failure fails only the run and not the whole
// handler, and defers side effects (dispatcher calls) until after commit.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluxwork/fluxwork/internal/engine"
	"github.com/fluxwork/fluxwork/internal/store"
	"github.com/fluxwork/fluxwork/pkg/observability"
)

const riskSavepoint = "coordinator_handler"

// Coordinator is the only caller of engine.Engine in the running daemon:
// every handler below opens a transaction, locks the row the task names,
// and runs the engine against it.
type Coordinator struct {
	store   store.Store
	engine  *engine.Engine
	logger  *slog.Logger
	tracer  observability.Tracer
	metrics *Metrics
}

// New constructs a Coordinator, registering its task-handling metrics
// against the default Prometheus registerer. Use WithTracer to attach
// span export.
func New(st store.Store, eng *engine.Engine, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store: st, engine: eng, logger: logger.With(slog.String("component", "coordinator")),
		tracer:  observability.NoopProvider{}.Tracer("fluxwork.coordinator"),
		metrics: registerMetrics(prometheus.DefaultRegisterer),
	}
}

// WithTracer returns a copy of c instrumenting every task handler with
// spans from provider, for run/execution observability (§9 domain stack).
func (c *Coordinator) WithTracer(provider observability.TracerProvider) *Coordinator {
	nc := *c
	nc.tracer = provider.Tracer("fluxwork.coordinator")
	return &nc
}

// handlerFunc is the risky part of a coordinator task: it runs under the
// run's row lock and inside a savepoint, and returns the AfterCommit work
// the caller must run once the surrounding transaction has committed.
type handlerFunc func(ctx context.Context, tx store.Tx, run *store.Run) (*engine.Result, error)

// withRun implements §4.4's four-step handler pattern: open tx, lock the
// run (silent no-op if it no longer exists), run fn inside a savepoint —
// rolling the savepoint back and failing the run if fn errors rather than
// losing the whole transaction — then commit and run the deferred work.
func (c *Coordinator) withRun(ctx context.Context, runID string, fn handlerFunc) (result *engine.Result, err error) {
	ctx, span := c.tracer.Start(ctx, "coordinator.withRun", observability.WithAttributes(map[string]any{"run.id": runID}))
	defer span.End()

	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.metrics.TasksHandled.WithLabelValues(outcome).Inc()
		c.metrics.TaskDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	run, err := tx.LockRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("lock run %s: %w", runID, err)
	}
	if run == nil {
		// The run was deleted between task enqueue and delivery; tasks are
		// at-least-once, so this is an ordinary race, not an error.
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		return nil, nil
	}

	if err := tx.Savepoint(ctx, riskSavepoint); err != nil {
		return nil, fmt.Errorf("savepoint: %w", err)
	}

	result, runErr := fn(ctx, tx, run)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(observability.StatusCodeError, runErr.Error())
		c.logger.Error("handler failed, failing run",
			slog.String("run_id", runID), slog.Any("error", runErr))
		if err := tx.RollbackTo(ctx, riskSavepoint); err != nil {
			return nil, fmt.Errorf("rollback to savepoint: %w", err)
		}
		now := time.Now().UTC()
		run.Status = store.RunFailed
		run.Ended = &now
		c.metrics.RunsFailed.Inc()
		if err := tx.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("save failed run: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		return nil, runErr
	}

	if err := tx.ReleaseSavepoint(ctx, riskSavepoint); err != nil {
		return nil, fmt.Errorf("release savepoint: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return result, nil
}

// runAfterCommit executes a Result's deferred side effects and logs (but
// does not propagate) any failure — a dispatcher call failing after the
// run's own state has already committed must not be retried by re-running
// the handler, per §7's side-effect error policy.
func (c *Coordinator) runAfterCommit(ctx context.Context, result *engine.Result) {
	if result == nil {
		return
	}
	if err := result.Run(ctx); err != nil {
		c.logger.Error("after-commit side effect failed", slog.Any("error", err))
	}
}

// InitiateRun handles the "initiate-run" task: transition a pending or
// prepared run to active and start its entry step.
func (c *Coordinator) InitiateRun(ctx context.Context, runID string) error {
	result, err := c.withRun(ctx, runID, func(ctx context.Context, tx store.Tx, run *store.Run) (*engine.Result, error) {
		wf, err := c.store.GetWorkflow(ctx, run.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("load workflow %s: %w", run.WorkflowID, err)
		}
		return c.engine.InitiateRun(ctx, tx, wf, run)
	})
	if err != nil {
		return err
	}
	c.runAfterCommit(ctx, result)
	return nil
}

// AbortExecutions handles the "abort-executions" task.
func (c *Coordinator) AbortExecutions(ctx context.Context, runID string) error {
	result, err := c.withRun(ctx, runID, func(ctx context.Context, tx store.Tx, run *store.Run) (*engine.Result, error) {
		return c.engine.AbortExecutions(ctx, tx, run)
	})
	if err != nil {
		return err
	}
	c.runAfterCommit(ctx, result)
	return nil
}

// ProcessCallback handles the scheduler's async completion callback for a
// single execution: it looks the execution up (unlocked, to discover its
// owning run), then re-locks it under the run's row lock before handing
// off to the engine, so a concurrent abort and a concurrent callback for
// the same execution can never both win.
func (c *Coordinator) ProcessCallback(ctx context.Context, executionID, status, outcome string, output map[string]interface{}) error {
	seed, err := c.peekExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if seed == nil {
		// Unknown execution id: tolerate, the same way a run-not-found is
		// tolerated — a duplicate or late callback for a purged run.
		return nil
	}

	result, err := c.withRun(ctx, seed.RunID, func(ctx context.Context, tx store.Tx, run *store.Run) (*engine.Result, error) {
		exec, err := tx.LockExecution(ctx, executionID)
		if err != nil {
			return nil, fmt.Errorf("lock execution %s: %w", executionID, err)
		}
		if exec == nil {
			return &engine.Result{}, nil
		}
		wf, err := c.store.GetWorkflow(ctx, run.WorkflowID)
		if err != nil {
			return nil, fmt.Errorf("load workflow %s: %w", run.WorkflowID, err)
		}
		return c.engine.ProcessCallback(ctx, tx, wf, run, exec, status, outcome, output)
	})
	if err != nil {
		return err
	}
	c.runAfterCommit(ctx, result)
	return nil
}

// peekExecution reads an execution outside any lock, solely to discover
// which run owns it before taking the run's lock.
func (c *Coordinator) peekExecution(ctx context.Context, executionID string) (*store.WorkflowExecution, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return tx.GetExecution(ctx, executionID)
}
