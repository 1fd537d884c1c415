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
	"strings"
	"time"

	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

func (b *Backend) CreateWorkflow(ctx context.Context, w *store.Workflow) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, designation, is_service, type, specification, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Designation, w.IsService, w.Type, w.Specification,
		w.Modified.UTC().Format(timeFormat))
	if err != nil {
		return mapWorkflowWriteErr(err)
	}
	return nil
}

func (b *Backend) GetWorkflow(ctx context.Context, id string) (*store.Workflow, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT id, name, designation, is_service, type, specification, modified
		FROM workflows WHERE id = ?`, id)
	return scanWorkflow(row)
}

func (b *Backend) GetWorkflowByName(ctx context.Context, name string) (*store.Workflow, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT id, name, designation, is_service, type, specification, modified
		FROM workflows WHERE name = ?`, name)
	return scanWorkflow(row)
}

func (b *Backend) UpdateWorkflow(ctx context.Context, w *store.Workflow) error {
	res, err := b.db.ExecContext(ctx, `
		UPDATE workflows SET name=?, designation=?, is_service=?, type=?, specification=?, modified=?
		WHERE id=?`,
		w.Name, w.Designation, w.IsService, w.Type, w.Specification,
		w.Modified.UTC().Format(timeFormat), w.ID)
	if err != nil {
		return mapWorkflowWriteErr(err)
	}
	return checkRowsAffected(res, "workflow", w.ID)
}

func (b *Backend) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := b.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

func (b *Backend) ListWorkflows(ctx context.Context, filter store.WorkflowFilter) ([]*store.Workflow, error) {
	query := `SELECT id, name, designation, is_service, type, specification, modified FROM workflows WHERE 1=1`
	var args []interface{}
	if filter.Name != "" {
		query += ` AND name = ?`
		args = append(args, filter.Name)
	}
	query += ` ORDER BY name`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
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
		WHERE workflow_id = ? AND status NOT IN (?, ?, ?, ?, ?)`,
		workflowID, store.RunAborted, store.RunCompleted, store.RunFailed,
		store.RunTimedout, store.RunInvalidated).Scan(&count)
	return count, err
}

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(row *sql.Row) (*store.Workflow, error) {
	return scanWorkflowRow(row)
}

func scanWorkflowRow(row rowScanner) (*store.Workflow, error) {
	var w store.Workflow
	var designation, spec sql.NullString
	var modified string
	err := row.Scan(&w.ID, &w.Name, &designation, &w.IsService, &w.Type, &spec, &modified)
	if err == sql.ErrNoRows {
		return nil, &fluxerrors.NotFoundError{Resource: "workflow"}
	}
	if err != nil {
		return nil, err
	}
	w.Designation = designation.String
	w.Specification = spec.String
	t, perr := time.Parse(timeFormat, modified)
	if perr != nil {
		return nil, perr
	}
	w.Modified = t
	return &w, nil
}

func mapWorkflowWriteErr(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueConstraintErr(err) {
		return &fluxerrors.OperationError{
			Token:   "duplicate-workflow-name",
			Message: "a workflow with this name already exists",
		}
	}
	return err
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &fluxerrors.NotFoundError{Resource: resource, ID: id}
	}
	return nil
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE"))
}
