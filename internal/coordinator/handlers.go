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
	"encoding/json"
	"fmt"
	"net/http"
)

// callbackBody is the payload the scheduler posts when a process
// completes, fails, times out, or is otherwise resolved.
type callbackBody struct {
	Status  string                 `json:"status"`
	Outcome string                 `json:"outcome,omitempty"`
	Output  map[string]interface{} `json:"output,omitempty"`
}

// RegisterRoutes registers the coordinator's task endpoints on mux. These
// are internal routes: the scheduler calls them, not end users.
func (c *Coordinator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /runs/{id}/task", c.handleInitiateRun)
	mux.HandleFunc("POST /runs/{id}/abort", c.handleAbortExecutions)
	mux.HandleFunc("POST /executions/{id}/task", c.handleExecutionCallback)
}

func (c *Coordinator) handleInitiateRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run id required")
		return
	}
	if err := c.InitiateRun(r.Context(), runID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to initiate run: %v", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (c *Coordinator) handleAbortExecutions(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run id required")
		return
	}
	if err := c.AbortExecutions(r.Context(), runID); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to abort run: %v", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (c *Coordinator) handleExecutionCallback(w http.ResponseWriter, r *http.Request) {
	executionID := r.PathValue("id")
	if executionID == "" {
		writeError(w, http.StatusBadRequest, "execution id required")
		return
	}

	var body callbackBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
			return
		}
	}
	if body.Status == "" {
		writeError(w, http.StatusBadRequest, "status required")
		return
	}

	if err := c.ProcessCallback(r.Context(), executionID, body.Status, body.Outcome, body.Output); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to process callback: %v", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
