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
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
	"github.com/fluxwork/fluxwork/pkg/specification"
)

func (s *Server) registerWorkflowRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /workflows", s.handleCreateWorkflow)
	mux.HandleFunc("POST /workflows/generate", s.handleGenerateWorkflow)
	mux.HandleFunc("GET /workflows/{id}", s.handleGetWorkflow)
	mux.HandleFunc("GET /workflows", s.handleQueryWorkflows)
	mux.HandleFunc("PUT /workflows/{id}", s.handleUpdateWorkflow)
	mux.HandleFunc("DELETE /workflows/{id}", s.handleDeleteWorkflow)
}

type workflowBody struct {
	Name          string `json:"name"`
	Designation   string `json:"designation,omitempty"`
	IsService     bool   `json:"is_service,omitempty"`
	Type          string `json:"type,omitempty"`
	Specification string `json:"specification"`
}

func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var body workflowBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	spec, err := specification.Parse([]byte(body.Specification))
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := spec.Verify(); err != nil {
		writeErr(w, err)
		return
	}

	wf := &store.Workflow{
		ID: uuid.New().String(), Name: body.Name, Designation: body.Designation,
		IsService: body.IsService, Type: body.Type, Specification: body.Specification,
		Modified: time.Now().UTC(),
	}
	if err := s.store.CreateWorkflow(r.Context(), wf); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

// generateBody mirrors spec.md §6's generate payload: a linear list of
// operations, each threaded into the next via a single-action execute-step
// postoperation rule.
type generateBody struct {
	Name       string `json:"name"`
	Operations []struct {
		Operation   string                 `json:"operation"`
		Description string                 `json:"description,omitempty"`
		RunParams   map[string]interface{} `json:"run_params,omitempty"`
		StepParams  map[string]interface{} `json:"step_params,omitempty"`
	} `json:"operations"`
}

func (s *Server) handleGenerateWorkflow(w http.ResponseWriter, r *http.Request) {
	var body generateBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if len(body.Operations) == 0 {
		writeError(w, http.StatusBadRequest, "at least one operation is required")
		return
	}

	spec := &specification.Specification{
		Name:       body.Name,
		Parameters: map[string]interface{}{},
		Steps:      map[string]*specification.Step{},
	}

	stepNames := make([]string, len(body.Operations))
	for i := range body.Operations {
		stepNames[i] = fmt.Sprintf("step%d", i+1)
	}
	spec.Entry = stepNames[0]

	for i, op := range body.Operations {
		for k, v := range op.RunParams {
			spec.Parameters[k] = v
		}

		step := &specification.Step{
			Description: op.Description,
			Operation:   op.Operation,
			Parameters:  op.StepParams,
		}
		if i < len(body.Operations)-1 {
			step.Postoperation = specification.RuleList{
				Rules: []specification.Rule{{
					Actions: []specification.Action{{
						Kind: specification.ActionExecuteStep,
						Step: stepNames[i+1],
					}},
				}},
			}
		}
		spec.Steps[stepNames[i]] = step
	}

	if err := spec.Verify(); err != nil {
		writeErr(w, err)
		return
	}
	out, err := spec.Marshal()
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to marshal generated specification: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"specification": string(out)})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wf, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleQueryWorkflows(w http.ResponseWriter, r *http.Request) {
	filter := store.WorkflowFilter{Name: r.URL.Query().Get("name")}
	out, err := s.store.ListWorkflows(r.Context(), filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}

	var body workflowBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Specification != "" {
		spec, err := specification.Parse([]byte(body.Specification))
		if err != nil {
			writeErr(w, err)
			return
		}
		if err := spec.Verify(); err != nil {
			writeErr(w, err)
			return
		}
		existing.Specification = body.Specification
	}
	if body.Name != "" {
		existing.Name = body.Name
	}
	existing.Designation = body.Designation
	existing.IsService = body.IsService
	if body.Type != "" {
		existing.Type = body.Type
	}
	existing.Modified = time.Now().UTC()

	if err := s.store.UpdateWorkflow(r.Context(), existing); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteWorkflow enforces the two delete guards spec.md §6 names:
// cannot-delete-uncompleted-workflow when any non-terminal run still
// references the workflow, and cannot-delete-inuse-workflow for a
// published service workflow (IsService), which acts as a standing
// listener rather than a one-shot run template.
func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	wf, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}

	count, err := s.store.CountActiveRuns(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if count > 0 {
		writeErr(w, &fluxerrors.OperationError{
			Token:   "cannot-delete-uncompleted-workflow",
			Message: fmt.Sprintf("workflow %s has %d active run(s)", id, count),
		})
		return
	}
	if wf.IsService {
		writeErr(w, &fluxerrors.OperationError{
			Token:   "cannot-delete-inuse-workflow",
			Message: fmt.Sprintf("workflow %s is a published service workflow", id),
		})
		return
	}

	if err := s.store.DeleteWorkflow(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
