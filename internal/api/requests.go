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

	"github.com/google/uuid"

	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

// registerRequestRoutes registers plain Request/Message CRUD here, and
// delegates the named task endpoints (initiate-request, cancel-request,
// ...) to requests.Engine.RegisterRoutes, which owns that transition logic.
func (s *Server) registerRequestRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /requests", s.handleCreateRequest)
	mux.HandleFunc("GET /requests/{id}", s.handleGetRequest)
	mux.HandleFunc("GET /requests", s.handleQueryRequests)
	mux.HandleFunc("PUT /requests/{id}", s.handleUpdateRequest)
	mux.HandleFunc("GET /requests/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /requests/{id}/messages", s.handleAppendMessage)
	s.requests.RegisterRoutes(mux)
}

type createRequestBody struct {
	Name       string                 `json:"name"`
	Originator string                 `json:"originator"`
	Assignee   string                 `json:"assignee"`
	Creator    string                 `json:"creator,omitempty"`
	TemplateID string                 `json:"template_id,omitempty"`
	SlotOrder  []string               `json:"slot_order"`
	Slots      map[string]store.Slot  `json:"slots"`
	Products   map[string]store.Surrogate `json:"products,omitempty"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	req := &store.Request{
		ID: uuid.New().String(), Name: body.Name, Originator: body.Originator,
		Assignee: body.Assignee, Creator: body.Creator, TemplateID: body.TemplateID,
		Slots: body.Slots, Products: body.Products,
	}
	if err := s.requests.Create(r.Context(), req, body.SlotOrder); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.store.GetRequest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleQueryRequests(w http.ResponseWriter, r *http.Request) {
	filter := store.RequestFilter{
		Status:   r.URL.Query().Get("status"),
		Assignee: r.URL.Query().Get("assignee"),
	}
	out, err := s.store.ListRequests(r.Context(), filter)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type updateRequestBody struct {
	Status  string         `json:"status"`
	Message *store.Message `json:"message,omitempty"`
}

// handleUpdateRequest is the generic CRUD update verb; it runs through the
// same applyTransition table the named task endpoints use, so there is no
// way to reach a status this engine would otherwise reject.
func (s *Server) handleUpdateRequest(w http.ResponseWriter, r *http.Request) {
	var body updateRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Status == "" {
		writeErr(w, &fluxerrors.ValidationError{Field: "status", Message: "status is required"})
		return
	}

	result, err := s.requests.Update(r.Context(), r.PathValue("id"), body.Status, body.Message)
	if err != nil {
		writeErr(w, err)
		return
	}
	if result != nil {
		if err := result.Run(r.Context()); err != nil {
			s.logger.Error("after-commit callback failed", "request_id", r.PathValue("id"), "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	out, err := s.store.ListMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type appendMessageBody struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

// handleAppendMessage appends a message without a status transition (a
// plain comment); the named task endpoints are the only way to carry a
// message alongside a status change.
func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var body appendMessageBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	req, err := s.store.GetRequest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}

	msg := &store.Message{
		ID: uuid.New().String(), RequestID: req.ID, Author: body.Author, Body: body.Body,
	}
	result, err := s.requests.Update(r.Context(), req.ID, req.Status, msg)
	if err != nil {
		writeErr(w, err)
		return
	}
	if result != nil {
		if err := result.Run(r.Context()); err != nil {
			s.logger.Error("after-commit callback failed", "request_id", req.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, msg)
}
