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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxwork/fluxwork/internal/cache"
	"github.com/fluxwork/fluxwork/internal/coordinator"
	"github.com/fluxwork/fluxwork/internal/dispatcher"
	"github.com/fluxwork/fluxwork/internal/engine"
	"github.com/fluxwork/fluxwork/internal/registry"
	"github.com/fluxwork/fluxwork/internal/requests"
	"github.com/fluxwork/fluxwork/internal/store"
	sqlitestore "github.com/fluxwork/fluxwork/internal/store/sqlite"
	"github.com/fluxwork/fluxwork/pkg/specification"
)

// stubDispatcher is a no-op Dispatcher: the API tests exercise resource
// controllers, not the scheduler round-trip (covered in internal/engine
// and internal/coordinator).
type stubDispatcher struct{}

func (stubDispatcher) CreateProcess(ctx context.Context, req dispatcher.CreateProcessRequest) (*dispatcher.Process, error) {
	return &dispatcher.Process{ID: "proc-1", Status: "pending"}, nil
}
func (stubDispatcher) UpdateProcessStatus(ctx context.Context, processID, status string) error {
	return nil
}
func (stubDispatcher) CreateQueue(ctx context.Context, q dispatcher.Queue) error { return nil }
func (stubDispatcher) CreateEvent(ctx context.Context, e dispatcher.Event) error { return nil }
func (stubDispatcher) QueueHTTPTask(ctx context.Context, task dispatcher.HTTPTask) error {
	return nil
}
func (stubDispatcher) QueueEventTask(ctx context.Context, task dispatcher.EventTask) error {
	return nil
}

func setupServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	backend, err := sqlitestore.New(sqlitestore.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	disp := stubDispatcher{}
	reg := registry.New(backend, disp, nil)
	eng := engine.New(cache.New(), reg, disp, nil)
	coord := coordinator.New(backend, eng, nil)
	reqEngine := requests.New(backend, disp, nil, nil, nil)

	return New(backend, reg, disp, coord, reqEngine, nil), backend
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestCreateWorkflowAcceptsValidSpecification(t *testing.T) {
	s, _ := setupServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	spec := &specification.Specification{
		Name:  "wf-1",
		Entry: "start",
		Steps: map[string]*specification.Step{"start": {Operation: "ns:op"}},
	}
	raw, err := spec.Marshal()
	require.NoError(t, err)

	rec := doJSON(t, mux, "POST", "/workflows", workflowBody{Name: "wf-1", Specification: string(raw)})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var wf store.Workflow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wf))
	assert.NotEmpty(t, wf.ID)
}

func TestGenerateWorkflowChainsStepsInOrder(t *testing.T) {
	s, _ := setupServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	rec := doJSON(t, mux, "POST", "/workflows/generate", generateBody{
		Name: "chained",
		Operations: []struct {
			Operation   string                 `json:"operation"`
			Description string                 `json:"description,omitempty"`
			RunParams   map[string]interface{} `json:"run_params,omitempty"`
			StepParams  map[string]interface{} `json:"step_params,omitempty"`
		}{
			{Operation: "ns:a"},
			{Operation: "ns:b"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	spec, err := specification.Parse([]byte(out["specification"]))
	require.NoError(t, err)
	assert.Equal(t, "step1", spec.Entry)
	assert.Len(t, spec.Steps["step1"].Postoperation.Rules, 1)
	assert.Equal(t, "step2", spec.Steps["step1"].Postoperation.Rules[0].Actions[0].Step)
	assert.Empty(t, spec.Steps["step2"].Postoperation.Rules)
}

func TestCreateRunSchedulesInitiateTask(t *testing.T) {
	s, backend := setupServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	op := &specification.Operation{
		ID: "ns:a", Phase: specification.PhaseOperation,
		Outcomes: map[string]specification.Outcome{"ok": {Name: "ok", Kind: specification.OutcomeSuccess}},
	}
	require.NoError(t, s.registry.Create(context.Background(), op))

	spec := &specification.Specification{Name: "wf", Entry: "start", Steps: map[string]*specification.Step{"start": {Operation: "ns:a"}}}
	raw, err := spec.Marshal()
	require.NoError(t, err)
	wfRec := doJSON(t, mux, "POST", "/workflows", workflowBody{Name: "wf", Specification: string(raw)})
	require.Equal(t, http.StatusCreated, wfRec.Code)
	var wf store.Workflow
	require.NoError(t, json.Unmarshal(wfRec.Body.Bytes(), &wf))

	runRec := doJSON(t, mux, "POST", "/runs", createRunBody{WorkflowID: wf.ID, Name: "run-1"})
	require.Equal(t, http.StatusCreated, runRec.Code)
	var run store.Run
	require.NoError(t, json.Unmarshal(runRec.Body.Bytes(), &run))
	assert.Equal(t, store.RunPending, run.Status)

	// The stub dispatcher's QueueHTTPTask no-ops rather than looping the
	// task back into the coordinator, so the run stays pending: this test
	// only confirms the create path persists and schedules without error.
	reloaded, err := backend.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, store.RunPending, reloaded.Status)
}

func TestCreateRequestAndUpdateToDeclined(t *testing.T) {
	s, _ := setupServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	createRec := doJSON(t, mux, "POST", "/requests", createRequestBody{
		Name: "approve-x", Originator: "user-a", Assignee: "user-b",
		SlotOrder: []string{"amount"},
		Slots:     map[string]store.Slot{"amount": {Title: "Amount", Type: "text"}},
	})
	require.Equal(t, http.StatusCreated, createRec.Code)
	var req store.Request
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &req))

	pendingRec := doJSON(t, mux, "PUT", "/requests/"+req.ID, updateRequestBody{Status: store.RequestPending})
	require.Equal(t, http.StatusOK, pendingRec.Code)

	declineRec := doJSON(t, mux, "PUT", "/requests/"+req.ID, updateRequestBody{
		Status:  store.RequestDeclined,
		Message: &store.Message{Author: "user-b", Body: "not valid"},
	})
	assert.Equal(t, http.StatusOK, declineRec.Code)

	msgsRec := doJSON(t, mux, "GET", "/requests/"+req.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, msgsRec.Code)
	var msgs []*store.Message
	require.NoError(t, json.Unmarshal(msgsRec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "not valid", msgs[0].Body)
}

func TestDeleteWorkflowRefusesWithActiveRun(t *testing.T) {
	s, backend := setupServer(t)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	spec := &specification.Specification{Name: "wf2", Entry: "start", Steps: map[string]*specification.Step{"start": {Operation: "ns:a"}}}
	raw, err := spec.Marshal()
	require.NoError(t, err)
	wfRec := doJSON(t, mux, "POST", "/workflows", workflowBody{Name: "wf2", Specification: string(raw)})
	require.Equal(t, http.StatusCreated, wfRec.Code)
	var wf store.Workflow
	require.NoError(t, json.Unmarshal(wfRec.Body.Bytes(), &wf))

	require.NoError(t, backend.CreateRun(context.Background(), &store.Run{
		ID: "r1", WorkflowID: wf.ID, Name: "r1", Status: store.RunActive, NextExecutionID: 1,
	}))

	delRec := doJSON(t, mux, "DELETE", "/workflows/"+wf.ID, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, delRec.Code)
	assert.Contains(t, delRec.Body.String(), "cannot-delete-uncompleted-workflow")
}
