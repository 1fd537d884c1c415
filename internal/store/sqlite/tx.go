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

package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

// tx is the SQLite realization of store.Tx. Because Backend forces
// SetMaxOpenConns(1), BeginTx already blocks every other writer for the
// lifetime of the transaction: "LockRun" is then a plain SELECT, the
// exclusivity comes from holding the only connection.
type tx struct {
	sqlTx *sql.Tx
}

func (b *Backend) Begin(ctx context.Context) (store.Tx, error) {
	sqlTx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &tx{sqlTx: sqlTx}, nil
}

func (t *tx) Commit() error   { return t.sqlTx.Commit() }
func (t *tx) Rollback() error { return t.sqlTx.Rollback() }

func (t *tx) Savepoint(ctx context.Context, name string) error {
	_, err := t.sqlTx.ExecContext(ctx, fmt.Sprintf("SAVEPOINT %s", name))
	return err
}

func (t *tx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.sqlTx.ExecContext(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", name))
	return err
}

func (t *tx) ReleaseSavepoint(ctx context.Context, name string) error {
	_, err := t.sqlTx.ExecContext(ctx, fmt.Sprintf("RELEASE SAVEPOINT %s", name))
	return err
}

func (t *tx) LockRun(ctx context.Context, id string) (*store.Run, error) {
	row := t.sqlTx.QueryRowContext(ctx, `
		SELECT id, workflow_id, name, status, parameters, products, started, ended, next_execution_id
		FROM runs WHERE id = ?`, id)

	var r store.Run
	var parameters, products, started, ended sql.NullString
	err := row.Scan(&r.ID, &r.WorkflowID, &r.Name, &r.Status, &parameters, &products,
		&started, &ended, &r.NextExecutionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := unmarshal(parameters, &r.Parameters); err != nil {
		return nil, err
	}
	if r.Products, err = unmarshalSurrogates(products); err != nil {
		return nil, err
	}
	if r.Started, err = parseNullTime(started); err != nil {
		return nil, err
	}
	if r.Ended, err = parseNullTime(ended); err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *tx) SaveRun(ctx context.Context, r *store.Run) error {
	parameters, err := marshal(r.Parameters)
	if err != nil {
		return err
	}
	products, err := marshal(r.Products)
	if err != nil {
		return err
	}

	res, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO runs (id, workflow_id, name, status, parameters, products, started, ended, next_execution_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			workflow_id=excluded.workflow_id, name=excluded.name, status=excluded.status,
			parameters=excluded.parameters, products=excluded.products,
			started=excluded.started, ended=excluded.ended, next_execution_id=excluded.next_execution_id`,
		r.ID, r.WorkflowID, r.Name, r.Status, parameters, products,
		nullTime(r.Started), nullTime(r.Ended), r.NextExecutionID)
	if err != nil {
		return err
	}
	_, err = res.RowsAffected()
	return err
}

// AllocateExecutionID returns the run's current NextExecutionID and
// persists the incremented counter itself via SaveRun. Both happen inside
// the same locked transaction, satisfying §4.3 step 4's "allocated under
// the run's row lock".
func (t *tx) AllocateExecutionID(ctx context.Context, runID string) (int, error) {
	run, err := t.LockRun(ctx, runID)
	if err != nil {
		return 0, err
	}
	if run == nil {
		return 0, &fluxerrors.NotFoundError{Resource: "run", ID: runID}
	}
	id := run.NextExecutionID
	if id == 0 {
		id = 1
	}
	run.NextExecutionID = id + 1
	if err := t.SaveRun(ctx, run); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *tx) CreateExecution(ctx context.Context, e *store.WorkflowExecution) error {
	parameters, err := marshal(e.Parameters)
	if err != nil {
		return err
	}
	values, err := marshal(e.Values)
	if err != nil {
		return err
	}
	var ancestor sql.NullString
	if e.AncestorID != nil {
		ancestor = sql.NullString{String: *e.AncestorID, Valid: true}
	}

	_, err = t.sqlTx.ExecContext(ctx, `
		INSERT INTO workflow_executions (id, run_id, execution_id, ancestor_id, step, name,
			status, outcome, started, ended, parameters, values_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.ExecutionID, ancestor, e.Step, e.Name, e.Status, e.Outcome,
		nullTime(e.Started), nullTime(e.Ended), parameters, values)
	return err
}

func (t *tx) GetExecution(ctx context.Context, id string) (*store.WorkflowExecution, error) {
	row := t.sqlTx.QueryRowContext(ctx, executionSelect+` WHERE id = ?`, id)
	return scanExecution(row)
}

func (t *tx) LockExecution(ctx context.Context, id string) (*store.WorkflowExecution, error) {
	return t.GetExecution(ctx, id)
}

func (t *tx) SaveExecution(ctx context.Context, e *store.WorkflowExecution) error {
	parameters, err := marshal(e.Parameters)
	if err != nil {
		return err
	}
	values, err := marshal(e.Values)
	if err != nil {
		return err
	}
	var ancestor sql.NullString
	if e.AncestorID != nil {
		ancestor = sql.NullString{String: *e.AncestorID, Valid: true}
	}

	res, err := t.sqlTx.ExecContext(ctx, `
		UPDATE workflow_executions SET run_id=?, execution_id=?, ancestor_id=?, step=?, name=?,
			status=?, outcome=?, started=?, ended=?, parameters=?, values_json=?
		WHERE id=?`,
		e.RunID, e.ExecutionID, ancestor, e.Step, e.Name, e.Status, e.Outcome,
		nullTime(e.Started), nullTime(e.Ended), parameters, values, e.ID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", e.ID)
}

func (t *tx) ListExecutionsByRun(ctx context.Context, runID string) ([]*store.WorkflowExecution, error) {
	rows, err := t.sqlTx.QueryContext(ctx, executionSelect+` WHERE run_id = ? ORDER BY execution_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanExecutions(rows)
}

func (t *tx) ActiveExecutionsByRun(ctx context.Context, runID string) ([]*store.WorkflowExecution, error) {
	all, err := t.ListExecutionsByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	var active []*store.WorkflowExecution
	for _, e := range all {
		if e.IsActive() {
			active = append(active, e)
		}
	}
	return active, nil
}

func (t *tx) LockRequest(ctx context.Context, id string) (*store.Request, error) {
	row := t.sqlTx.QueryRowContext(ctx, requestSelect+` WHERE id = ?`, id)
	r, err := scanRequest(row)
	if err != nil {
		if _, ok := err.(*fluxerrors.NotFoundError); ok {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

func (t *tx) SaveRequest(ctx context.Context, r *store.Request) error {
	slotOrder, err := marshal(r.SlotOrder)
	if err != nil {
		return err
	}
	slots, err := marshal(r.Slots)
	if err != nil {
		return err
	}
	products, err := marshal(r.Products)
	if err != nil {
		return err
	}

	res, err := t.sqlTx.ExecContext(ctx, `
		UPDATE requests SET name=?, status=?, originator=?, assignee=?, creator=?, template_id=?,
			slot_order=?, claimed=?, completed=?, slots=?, products=?
		WHERE id=?`,
		r.Name, r.Status, r.Originator, r.Assignee, r.Creator, r.TemplateID,
		slotOrder, nullTime(r.Claimed), nullTime(r.Completed), slots, products, r.ID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "request", r.ID)
}

func (t *tx) AppendMessage(ctx context.Context, m *store.Message) error {
	_, err := t.sqlTx.ExecContext(ctx, `
		INSERT INTO messages (id, request_id, author, body, created) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.RequestID, m.Author, m.Body, m.Created.UTC().Format(timeFormat))
	return err
}

func (t *tx) GetOperation(ctx context.Context, id string) (*store.OperationRecord, error) {
	row := t.sqlTx.QueryRowContext(ctx, `
		SELECT id, name, phase, description, input_schema, parameters, outcomes
		FROM operations WHERE id = ?`, id)
	return scanOperation(row)
}

const executionSelect = `SELECT id, run_id, execution_id, ancestor_id, step, name, status, outcome,
	started, ended, parameters, values_json FROM workflow_executions`

func scanExecution(row rowScanner) (*store.WorkflowExecution, error) {
	var e store.WorkflowExecution
	var ancestor, outcome, started, ended, parameters, values sql.NullString
	err := row.Scan(&e.ID, &e.RunID, &e.ExecutionID, &ancestor, &e.Step, &e.Name, &e.Status,
		&outcome, &started, &ended, &parameters, &values)
	if err == sql.ErrNoRows {
		return nil, &fluxerrors.NotFoundError{Resource: "execution"}
	}
	if err != nil {
		return nil, err
	}
	if ancestor.Valid {
		v := ancestor.String
		e.AncestorID = &v
	}
	e.Outcome = outcome.String
	if e.Started, err = parseNullTime(started); err != nil {
		return nil, err
	}
	if e.Ended, err = parseNullTime(ended); err != nil {
		return nil, err
	}
	if err := unmarshal(parameters, &e.Parameters); err != nil {
		return nil, err
	}
	if err := unmarshal(values, &e.Values); err != nil {
		return nil, err
	}
	return &e, nil
}

func scanExecutions(rows *sql.Rows) ([]*store.WorkflowExecution, error) {
	var out []*store.WorkflowExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
