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

package coordinator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fluxwork/fluxwork/internal/cache"
	"github.com/fluxwork/fluxwork/internal/dispatcher"
	"github.com/fluxwork/fluxwork/internal/engine"
	"github.com/fluxwork/fluxwork/internal/registry"
	"github.com/fluxwork/fluxwork/internal/store"
	sqlitestore "github.com/fluxwork/fluxwork/internal/store/sqlite"
	"github.com/fluxwork/fluxwork/pkg/specification"
)

type stubDispatcher struct {
	processes int
}

func (s *stubDispatcher) CreateProcess(ctx context.Context, req dispatcher.CreateProcessRequest) (*dispatcher.Process, error) {
	s.processes++
	return &dispatcher.Process{ID: "proc-1", Status: "pending"}, nil
}
func (s *stubDispatcher) UpdateProcessStatus(ctx context.Context, processID, status string) error {
	return nil
}
func (s *stubDispatcher) CreateQueue(ctx context.Context, q dispatcher.Queue) error { return nil }
func (s *stubDispatcher) CreateEvent(ctx context.Context, e dispatcher.Event) error { return nil }
func (s *stubDispatcher) QueueHTTPTask(ctx context.Context, task dispatcher.HTTPTask) error {
	return nil
}
func (s *stubDispatcher) QueueEventTask(ctx context.Context, task dispatcher.EventTask) error {
	return nil
}

func setupCoordinator(t *testing.T) (*Coordinator, store.Store, *store.Run) {
	t.Helper()
	backend, err := sqlitestore.New(sqlitestore.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	disp := &stubDispatcher{}
	reg := registry.New(backend, disp, nil)

	op := &specification.Operation{
		ID:    "ns:step-one",
		Name:  "Step One",
		Phase: specification.PhaseOperation,
		Outcomes: map[string]specification.Outcome{
			"ok": {Name: "ok", Kind: specification.OutcomeSuccess},
		},
	}
	require.NoError(t, reg.Create(context.Background(), op))

	spec := &specification.Specification{
		Name:  "single-step",
		Entry: "start",
		Steps: map[string]*specification.Step{
			"start": {Operation: "ns:step-one"},
		},
	}
	data, err := spec.Marshal()
	require.NoError(t, err)

	ctx := context.Background()
	wf := &store.Workflow{ID: "wf-1", Name: spec.Name, Type: "yaml", Specification: string(data), Modified: time.Now()}
	require.NoError(t, backend.CreateWorkflow(ctx, wf))

	run := &store.Run{ID: "run-1", WorkflowID: wf.ID, Name: "run-1", Status: store.RunPending, NextExecutionID: 1}
	tx, err := backend.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.SaveRun(ctx, run))
	require.NoError(t, tx.Commit())

	eng := engine.New(cache.New(), reg, disp, nil)
	return New(backend, eng, nil), backend, run
}

func TestInitiateRunActivatesRun(t *testing.T) {
	c, store, run := setupCoordinator(t)
	require.NoError(t, c.InitiateRun(context.Background(), run.ID))

	tx, err := store.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	reloaded, err := tx.LockRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, "active", reloaded.Status)
}

func TestInitiateRunOnMissingRunIsSilentNoOp(t *testing.T) {
	c, _, _ := setupCoordinator(t)
	require.NoError(t, c.InitiateRun(context.Background(), "does-not-exist"))
}

func TestProcessCallbackCompletesRun(t *testing.T) {
	c, backend, run := setupCoordinator(t)
	ctx := context.Background()
	require.NoError(t, c.InitiateRun(ctx, run.ID))

	tx, err := backend.Begin(ctx)
	require.NoError(t, err)
	execs, err := tx.ListExecutionsByRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	execID := execs[0].ID
	require.NoError(t, tx.Rollback())

	require.NoError(t, c.ProcessCallback(ctx, execID, "completed", "ok", nil))

	tx2, err := backend.Begin(ctx)
	require.NoError(t, err)
	defer tx2.Rollback()
	reloaded, err := tx2.LockRun(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, store.RunCompleted, reloaded.Status)
}

func TestHTTPHandlersRoundTrip(t *testing.T) {
	c, _, run := setupCoordinator(t)
	mux := http.NewServeMux()
	c.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/runs/"+run.ID+"/task", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	resp2, err := http.Post(srv.URL+"/executions/missing/task", "application/json", strings.NewReader(`{"status":"completed"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp2.StatusCode)
	resp2.Body.Close()
}
