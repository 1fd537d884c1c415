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

	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

func (b *Backend) CreateOperation(ctx context.Context, op *store.OperationRecord) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO operations (id, name, phase, description, input_schema, parameters, outcomes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		op.ID, op.Name, op.Phase, op.Description,
		nullBytes(op.InputSchemaJSON), nullBytes(op.ParametersJSON), string(op.OutcomesJSON))
	return err
}

func (b *Backend) GetOperation(ctx context.Context, id string) (*store.OperationRecord, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT id, name, phase, description, input_schema, parameters, outcomes
		FROM operations WHERE id = $1`, id)
	return scanOperation(row)
}

func (b *Backend) UpdateOperation(ctx context.Context, op *store.OperationRecord) error {
	res, err := b.db.ExecContext(ctx, `
		UPDATE operations SET name=$1, phase=$2, description=$3, input_schema=$4, parameters=$5, outcomes=$6
		WHERE id=$7`,
		op.Name, op.Phase, op.Description, nullBytes(op.InputSchemaJSON),
		nullBytes(op.ParametersJSON), string(op.OutcomesJSON), op.ID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "operation", op.ID)
}

func (b *Backend) ListOperations(ctx context.Context, filter store.OperationFilter) ([]*store.OperationRecord, error) {
	query := `SELECT id, name, phase, description, input_schema, parameters, outcomes FROM operations WHERE TRUE`
	var args []interface{}
	if filter.Phase != "" {
		args = append(args, filter.Phase)
		query += ` AND phase = $1`
	}
	query += ` ORDER BY id`

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.OperationRecord
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

func nullBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func scanOperation(row rowScanner) (*store.OperationRecord, error) {
	var op store.OperationRecord
	var description, inputSchema, parameters sql.NullString
	var outcomes string
	err := row.Scan(&op.ID, &op.Name, &op.Phase, &description, &inputSchema, &parameters, &outcomes)
	if err == sql.ErrNoRows {
		return nil, &fluxerrors.NotFoundError{Resource: "operation"}
	}
	if err != nil {
		return nil, err
	}
	op.Description = description.String
	op.InputSchemaJSON = []byte(inputSchema.String)
	op.ParametersJSON = []byte(parameters.String)
	op.OutcomesJSON = []byte(outcomes)
	return &op, nil
}
