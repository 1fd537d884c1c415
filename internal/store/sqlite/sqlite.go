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

// Package sqlite provides a SQLite persistence backend for single-node
// deployments. Row-level locking is realized by serializing all writes
// through a single connection (SetMaxOpenConns(1)): a transaction that
// calls LockRun blocks every other writer until it commits or rolls back,
// which is the same guarantee §5 asks of "SELECT ... FOR UPDATE".
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fluxwork/fluxwork/internal/store"
	_ "modernc.org/sqlite"
)

var _ store.Store = (*Backend)(nil)

// Backend is a SQLite storage backend.
type Backend struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	Path string
	WAL  bool
}

// New opens (and migrates) a SQLite-backed Store.
func New(cfg Config) (*Backend, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &Backend{db: db}
	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}
	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return b, nil
}

func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA auto_vacuum=INCREMENTAL",
		"PRAGMA synchronous=NORMAL",
	}
	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := b.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("failed to execute %s: %w", p, err)
		}
	}
	return nil
}

func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			designation TEXT,
			is_service INTEGER NOT NULL DEFAULT 0,
			type TEXT NOT NULL,
			specification TEXT,
			modified TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS operations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phase TEXT NOT NULL,
			description TEXT,
			input_schema TEXT,
			parameters TEXT,
			outcomes TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			name TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			parameters TEXT,
			products TEXT,
			started TEXT,
			ended TEXT,
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
			started TEXT,
			ended TEXT,
			parameters TEXT,
			values_json TEXT,
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
			slot_order TEXT,
			claimed TEXT,
			completed TEXT,
			slots TEXT,
			products TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			request_id TEXT NOT NULL,
			author TEXT,
			body TEXT,
			created TEXT NOT NULL
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
func (b *Backend) Close() error {
	return b.db.Close()
}

func marshal(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	switch t := v.(type) {
	case map[string]interface{}:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	case []string:
		if len(t) == 0 {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshal(ns sql.NullString, out interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), out)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
