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

package requests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fluxwork/fluxwork/internal/store"
)

type taskBody struct {
	Message *store.Message `json:"message,omitempty"`
}

// RegisterRoutes registers the request engine's named task endpoints
// (spec.md §6: initiate-request, cancel-request, decline-request,
// complete-request-operation, reassign-request-assignee).
func (e *Engine) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /requests/{id}/initiate-request", e.handleInitiate)
	mux.HandleFunc("POST /requests/{id}/cancel-request", e.handleCancel)
	mux.HandleFunc("POST /requests/{id}/decline-request", e.handleDecline)
	mux.HandleFunc("POST /requests/{id}/complete-request-operation", e.handleComplete)
	mux.HandleFunc("POST /requests/reassign-request-assignee", e.handleReassign)
}

func (e *Engine) handleInitiate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "request id required")
		return
	}
	if err := e.InitiateRequest(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to initiate request: %v", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (e *Engine) handleCancel(w http.ResponseWriter, r *http.Request) {
	e.handleTransition(w, r, e.CancelRequest)
}

func (e *Engine) handleDecline(w http.ResponseWriter, r *http.Request) {
	e.handleTransition(w, r, e.DeclineRequest)
}

func (e *Engine) handleComplete(w http.ResponseWriter, r *http.Request) {
	e.handleTransition(w, r, e.CompleteRequestOperation)
}

// transitionFunc matches the signature shared by CancelRequest,
// DeclineRequest and CompleteRequestOperation.
type transitionFunc func(ctx context.Context, id string, message *store.Message) (*Result, error)

func (e *Engine) handleTransition(w http.ResponseWriter, r *http.Request, op transitionFunc) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "request id required")
		return
	}

	var body taskBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
			return
		}
	}

	result, err := op(r.Context(), id, body.Message)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if result != nil {
		if err := result.Run(r.Context()); err != nil {
			e.logger.Error("after-commit callback failed", "request_id", id, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (e *Engine) handleReassign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.From == "" || body.To == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	ids, err := e.ReassignAssignee(r.Context(), body.From, body.To)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to reassign: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reassigned": ids})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
