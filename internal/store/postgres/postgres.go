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

// Package postgres provides a PostgreSQL persistence backend for
// multi-worker deployments, where row-level locking is a real
// "SELECT ... FOR UPDATE" rather than SQLite's single-writer serialization.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

var _ store.Store = (*Backend)(nil)

// Backend is a PostgreSQL storage backend.
type Backend struct {
	db *sql.DB
}

// Config contains PostgreSQL connection configuration.
type Config struct {
	ConnectionString string
	MaxOpenConns     int
}

// New opens (and migrates) a PostgreSQL-backed Store.
func New(cfg Config) (*Backend, error) {
	db, err := sql.Open("pgx", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &Backend{db: db}
	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return b, nil
}

func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			designation TEXT,
			is_service BOOLEAN NOT NULL DEFAULT FALSE,
			type TEXT NOT NULL,
			specification TEXT,
			modified TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS operations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phase TEXT NOT NULL,
			description TEXT,
			input_schema JSONB,
			parameters JSONB,
			outcomes JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			name TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			parameters JSONB,
			products JSONB,
			started TIMESTAMPTZ,
			ended TIMESTAMPTZ,
			next_execution_id INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_workflow_id ON runs(workflow_id)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
		`CREATE TABLE IF NOT EXISTS workflow_executions (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			execution_id INTEGER NOT NULL,
			ancestor_id TEXT,
			step TEXT NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			outcome TEXT,
			started TIMESTAMPTZ,
			ended TIMESTAMPTZ,
			parameters JSONB,
			values_json JSONB,
			UNIQUE(run_id, execution_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_run_id ON workflow_executions(run_id)`,
		`CREATE TABLE IF NOT EXISTS requests (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			originator TEXT,
			assignee TEXT,
			creator TEXT,
			template_id TEXT,
			slot_order JSONB,
			claimed TIMESTAMPTZ,
			completed TIMESTAMPTZ,
			slots JSONB,
			products JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			author TEXT,
			body TEXT,
			created TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_request_id ON messages(request_id)`,
		`CREATE TABLE IF NOT EXISTS email_templates (
			id TEXT PRIMARY KEY,
			template TEXT NOT NULL
		)`,
	}
	for _, m := range migrations {
		if _, err := b.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (b *Backend) Close() error { return b.db.Close() }

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate key value violates unique constraint")
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

func jsonOf(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case map[string]interface{}:
		if len(t) == 0 {
			return nil, nil
		}
	case []string:
		if len(t) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

// marshal encodes v as a JSONB parameter, returning a NULL column for an
// empty/nil value rather than storing a bare "null" or "{}" literal.
func marshal(v interface{}) (sql.NullString, error) {
	b, err := jsonOf(v)
	if err != nil {
		return sql.NullString{}, err
	}
	if b == nil {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshal(ns sql.NullString, out interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), out)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func parseNullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
