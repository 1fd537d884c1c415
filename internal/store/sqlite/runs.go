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

	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

// CreateRun and GetRun/ListRuns are plain CRUD outside the locked-
// transaction discipline — run creation happens via the API, status
// transitions happen exclusively through Tx.LockRun/SaveRun (§4.4).
func (b *Backend) CreateRun(ctx context.Context, r *store.Run) error {
	parameters, err := marshal(r.Parameters)
	if err != nil {
		return err
	}
	products, err := marshal(r.Products)
	if err != nil {
		return err
	}
	if r.NextExecutionID == 0 {
		r.NextExecutionID = 1
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO runs (id, workflow_id, name, status, parameters, products, started, ended, next_execution_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.WorkflowID, r.Name, r.Status, parameters, products,
		nullTime(r.Started), nullTime(r.Ended), r.NextExecutionID)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return &fluxerrors.OperationError{Token: "duplicate-run-name", Message: "a run with this name already exists"}
		}
		return err
	}
	return nil
}

func (b *Backend) GetRun(ctx context.Context, id string) (*store.Run, error) {
	row := b.db.QueryRowContext(ctx, runSelect+` WHERE id = ?`, id)
	return scanRun(row)
}

func (b *Backend) ListRuns(ctx context.Context, filter store.RunFilter) ([]*store.Run, error) {
	query := runSelect + ` WHERE 1=1`
	var args []interface{}
	if filter.WorkflowID != "" {
		query += ` AND workflow_id = ?`
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
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

	var out []*store.Run
	for rows.Next() {
		r, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const runSelect = `SELECT id, workflow_id, name, status, parameters, products, started, ended, next_execution_id FROM runs`

func scanRun(row *sql.Row) (*store.Run, error) {
	return scanRunRow(row)
}

func scanRunRow(row rowScanner) (*store.Run, error) {
	var r store.Run
	var parameters, products, started, ended sql.NullString
	err := row.Scan(&r.ID, &r.WorkflowID, &r.Name, &r.Status, &parameters, &products,
		&started, &ended, &r.NextExecutionID)
	if err == sql.ErrNoRows {
		return nil, &fluxerrors.NotFoundError{Resource: "run"}
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
