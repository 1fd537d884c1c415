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
)

func (s *Server) registerEmailTemplateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("PUT /email-templates", s.handlePutEmailTemplate)
	mux.HandleFunc("GET /email-templates/{id}", s.handleGetEmailTemplate)
}

type putEmailTemplateBody struct {
	Template string `json:"template"`
}

// handlePutEmailTemplate implements the deduplicated put spec.md §6 names:
// an identical template text already on record is returned as-is rather
// than inserted again.
func (s *Server) handlePutEmailTemplate(w http.ResponseWriter, r *http.Request) {
	var body putEmailTemplateBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	t, err := s.store.PutEmailTemplate(r.Context(), &store.EmailTemplate{ID: uuid.New().String(), Template: body.Template})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleGetEmailTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetEmailTemplate(r.Context(), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}
