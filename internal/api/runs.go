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
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/fluxwork/fluxwork/internal/dispatcher"
	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

func (s *Server) registerRunRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /runs", s.handleCreateRun)
	mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /runs", s.handleQueryRuns)
	mux.HandleFunc("PUT /runs/{id}", s.handleUpdateRun)
}

type createRunBody struct {
	WorkflowID string                 `json:"workflow_id"`
	Name       string                 `json:"name,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Notify     string                 `json:"notify,omitempty"`
	Status     string                 `json:"status,omitempty"`
}

// handleCreateRun implements spec.md §6's Run.create: the status defaults
// to "pending", which schedules the initiate-run task; "prepared" leaves
// the run dormant until a later update transitions it.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var body createRunBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.WorkflowID == "" {
		writeError(w, http.StatusBadRequest, "workflow_id is required")
		return
	}
	status := body.Status
	if status == "" {
		status = store.RunPending
	}
	if status != store.RunPending && status != store.RunPrepared {
		writeErr(w, &fluxerrors.ValidationError{Field: "status", Message: "must be one of prepared, pending"})
		return
	}

	if _, err := s.store.GetWorkflow(r.Context(), body.WorkflowID); err != nil {
		writeErr(w, err)
		return
	}

	name := body.Name
	if name == "" {
		name = uuid.New().String()
	}
	run := &store.Run{
		ID: uuid.New().String(), WorkflowID: body.WorkflowID, Name: name,
		Status: status, Parameters: body.Parameters, NextExecutionID: 1,
	}
	if err := s.store.CreateRun(r.Context(), run); err != nil {
		writeErr(w, err)
		return
	}

	if status == store.RunPending {
		s.scheduleInitiateRun(r.Context(), run.ID)
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleQueryRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		WorkflowID: r.URL.Query().Get("workflow_id"),
		Status:     r.URL.Query().Get("status"),
	}
	out, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type updateRunBody struct {
	Status string `json:"status"`
}

// handleUpdateRun implements the two transitions spec.md §6 allows through
// this verb: prepared→pending (schedules initiate-run) and *→aborting
// (schedules the abort cascade). Any other requested status is rejected;
// every other state change happens only through the coordinator's task
// callbacks, never directly through this endpoint.
func (s *Server) handleUpdateRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}

	var body updateRunBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	switch body.Status {
	case store.RunPending:
		if run.Status != store.RunPrepared {
			writeErr(w, &fluxerrors.OperationError{Token: "invalid-transition", Message: "only a prepared run can move to pending"})
			return
		}
		s.scheduleInitiateRun(r.Context(), id)
	case store.RunAborting:
		s.scheduleAbortExecutions(r.Context(), id)
	default:
		writeErr(w, &fluxerrors.ValidationError{Field: "status", Message: "must be one of pending, aborting"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// scheduleInitiateRun hands the initiate-run task off to the scheduler via
// the dispatcher, landing back on the coordinator's own task endpoint
// (§4.4); it tolerates a nil dispatcher by running the coordinator inline,
// useful for tests and single-process deployments.
func (s *Server) scheduleInitiateRun(ctx context.Context, runID string) {
	if s.dispatcher == nil {
		if err := s.coordinator.InitiateRun(ctx, runID); err != nil {
			s.logger.Error("inline initiate-run failed", "run_id", runID, "error", err)
		}
		return
	}
	if err := s.dispatcher.QueueHTTPTask(ctx, dispatcher.HTTPTask{Endpoint: "/runs/" + runID + "/task"}); err != nil {
		s.logger.Error("failed to schedule initiate-run", "run_id", runID, "error", err)
	}
}

func (s *Server) scheduleAbortExecutions(ctx context.Context, runID string) {
	if s.dispatcher == nil {
		if err := s.coordinator.AbortExecutions(ctx, runID); err != nil {
			s.logger.Error("inline abort-executions failed", "run_id", runID, "error", err)
		}
		return
	}
	if err := s.dispatcher.QueueHTTPTask(ctx, dispatcher.HTTPTask{Endpoint: "/runs/" + runID + "/abort"}); err != nil {
		s.logger.Error("failed to schedule abort-executions", "run_id", runID, "error", err)
	}
}
