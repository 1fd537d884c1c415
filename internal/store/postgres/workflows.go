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

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (b *Backend) CreateWorkflow(ctx context.Context, w *store.Workflow) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, designation, is_service, type, specification, modified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.Name, w.Designation, w.IsService, w.Type, w.Specification, w.Modified)
	if err != nil {
		return mapWorkflowWriteErr(err)
	}
	return nil
}

func (b *Backend) GetWorkflow(ctx context.Context, id string) (*store.Workflow, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT id, name, designation, is_service, type, specification, modified
		FROM workflows WHERE id = $1`, id)
	return scanWorkflow(row)
}

func (b *Backend) GetWorkflowByName(ctx context.Context, name string) (*store.Workflow, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT id, name, designation, is_service, type, specification, modified
		FROM workflows WHERE name = $1`, name)
	return scanWorkflow(row)
}

func (b *Backend) UpdateWorkflow(ctx context.Context, w *store.Workflow) error {
	res, err := b.db.ExecContext(ctx, `
		UPDATE workflows SET name=$1, designation=$2, is_service=$3, type=$4, specification=$5, modified=$6
		WHERE id=$7`,
		w.Name, w.Designation, w.IsService, w.Type, w.Specification, w.Modified, w.ID)
	if err != nil {
		return mapWorkflowWriteErr(err)
	}
	return checkRowsAffected(res, "workflow", w.ID)
}

func (b *Backend) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

func (b *Backend) ListWorkflows(ctx context.Context, filter store.WorkflowFilter) ([]*store.Workflow, error) {
	query := `SELECT id, name, designation, is_service, type, specification, modified FROM workflows WHERE TRUE`
	var args []interface{}
	n := 0
	next := func() string { n++; return fmt.Sprintf("$%d", n) }
	if filter.Name != "" {
		args = append(args, filter.Name)
		query += ` AND name = ` + next()
	}
	query += ` ORDER BY name`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT ` + next()
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += ` OFFSET ` + next()
		}
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.Workflow
	for rows.Next() {
		w, err := scanWorkflowRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (b *Backend) CountActiveRuns(ctx context.Context, workflowID string) (int, error) {
	var count int
	err := b.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM runs
		WHERE workflow_id = $1 AND status NOT IN ($2, $3, $4, $5, $6)`,
		workflowID, store.RunAborted, store.RunCompleted, store.RunFailed,
		store.RunTimedout, store.RunInvalidated).Scan(&count)
	return count, err
}

func scanWorkflow(row *sql.Row) (*store.Workflow, error) {
	return scanWorkflowRow(row)
}

func scanWorkflowRow(row rowScanner) (*store.Workflow, error) {
	var w store.Workflow
	var designation, spec sql.NullString
	err := row.Scan(&w.ID, &w.Name, &designation, &w.IsService, &w.Type, &spec, &w.Modified)
	if err == sql.ErrNoRows {
		return nil, &fluxerrors.NotFoundError{Resource: "workflow"}
	}
	if err != nil {
		return nil, err
	}
	w.Designation = designation.String
	w.Specification = spec.String
	return &w, nil
}

func mapWorkflowWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return &fluxerrors.OperationError{
			Token:   "duplicate-workflow-name",
			Message: "a workflow with this name already exists",
		}
	}
	return err
}
