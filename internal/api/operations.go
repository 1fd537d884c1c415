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

	"github.com/fluxwork/fluxwork/pkg/specification"
)

func (s *Server) registerOperationRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /operations", s.handleCreateOperation)
	mux.HandleFunc("PUT /operations/{id}", s.handleUpdateOperation)
	mux.HandleFunc("GET /operations/{id}", s.handleGetOperation)
	mux.HandleFunc("GET /operations", s.handleQueryOperations)
	mux.HandleFunc("POST /operations/{id}/process", s.handleOperationProcess)
	mux.HandleFunc("POST /operations/{id}/operation", s.handleOperationSynchronous)
}

func (s *Server) handleCreateOperation(w http.ResponseWriter, r *http.Request) {
	var op specification.Operation
	if err := decodeJSON(r, &op); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if err := s.registry.Create(r.Context(), &op); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, op)
}

func (s *Server) handleUpdateOperation(w http.ResponseWriter, r *http.Request) {
	var op specification.Operation
	if err := decodeJSON(r, &op); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	op.ID = r.PathValue("id")
	if err := s.registry.Update(r.Context(), &op); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	op, err := s.registry.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (s *Server) handleQueryOperations(w http.ResponseWriter, r *http.Request) {
	phase := specification.OperationPhase(r.URL.Query().Get("phase"))
	out, err := s.registry.List(r.Context(), phase)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// processCallbackBody mirrors the scheduler's process callback payload
// (spec.md §6): {id, tag, subject, status, output, progress, state}. Only
// the fields the coordinator consumes are decoded.
type processCallbackBody struct {
	Status  string                 `json:"status"`
	Outcome string                 `json:"tag"`
	Output  map[string]interface{} `json:"output"`
}

// handleOperationProcess handles the scheduler's async completion callback
// for the executions tagged with this operation's queue. The execution id
// the callback actually targets is the process's subject, carried as the
// {id} path segment — the same execution id the coordinator's own
// /executions/{id}/task route expects.
func (s *Server) handleOperationProcess(w http.ResponseWriter, r *http.Request) {
	var body processCallbackBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Status == "" {
		writeError(w, http.StatusBadRequest, "status required")
		return
	}

	executionID := r.PathValue("id")
	if err := s.coordinator.ProcessCallback(r.Context(), executionID, body.Status, body.Outcome, body.Output); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type synchronousOperationBody struct {
	Input   map[string]interface{} `json:"input,omitempty"`
	Timeout time.Duration          `json:"timeout,omitempty"`
}

// handleOperationSynchronous is the "generic synchronous entry for inline
// operations" spec.md §6 names: it creates a remote process immediately
// and returns the scheduler's acknowledgement, without going through a
// run or execution at all.
func (s *Server) handleOperationSynchronous(w http.ResponseWriter, r *http.Request) {
	var body synchronousOperationBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	proc, err := s.registry.Initiate(r.Context(), r.PathValue("id"), body.Input, body.Timeout)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, proc)
}
