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

	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

func (s *Server) registerExecutionRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /executions/{id}", s.handleGetExecution)
	mux.HandleFunc("GET /runs/{id}/executions", s.handleListExecutions)
	mux.HandleFunc("PUT /executions/{id}", s.handleUpdateExecution)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	tx, err := s.store.Begin(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	defer tx.Rollback()

	exec, err := tx.GetExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	tx, err := s.store.Begin(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	defer tx.Rollback()

	out, err := tx.ListExecutionsByRun(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type updateExecutionBody struct {
	Status string `json:"status"`
}

// handleUpdateExecution implements spec.md §6's Execution.update: setting
// status=aborting triggers the run-level abort cascade, since individual
// executions cannot be aborted independently of their run (§5).
func (s *Server) handleUpdateExecution(w http.ResponseWriter, r *http.Request) {
	var body updateExecutionBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Status != store.RunAborting {
		writeErr(w, &fluxerrors.ValidationError{Field: "status", Message: "only aborting is accepted"})
		return
	}

	tx, err := s.store.Begin(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	exec, err := tx.GetExecution(r.Context(), r.PathValue("id"))
	tx.Rollback()
	if err != nil {
		writeErr(w, err)
		return
	}

	s.scheduleAbortExecutions(r.Context(), exec.RunID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
