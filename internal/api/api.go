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

// Package api implements the Resource RPC surface (§6): plain net/http
// handlers for Workflow, Run, Execution, Operation, Request/Message and
// EmailTemplate, fronting the coordinator, registry and request engine.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fluxwork/fluxwork/internal/coordinator"
	"github.com/fluxwork/fluxwork/internal/dispatcher"
	"github.com/fluxwork/fluxwork/internal/registry"
	"github.com/fluxwork/fluxwork/internal/requests"
	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

// Server holds every dependency the resource handlers need. It does not
// itself run an HTTP server; callers mount RegisterRoutes on their own mux
// alongside the coordinator's and request engine's task routes.
type Server struct {
	store       store.Store
	registry    *registry.Registry
	dispatcher  dispatcher.Dispatcher
	coordinator *coordinator.Coordinator
	requests    *requests.Engine
	logger      *slog.Logger
}

// New constructs a Server.
func New(st store.Store, reg *registry.Registry, disp dispatcher.Dispatcher, coord *coordinator.Coordinator, reqEngine *requests.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store: st, registry: reg, dispatcher: disp, coordinator: coord, requests: reqEngine,
		logger: logger.With(slog.String("component", "api")),
	}
}

// RegisterRoutes registers every resource route on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	s.registerWorkflowRoutes(mux)
	s.registerRunRoutes(mux)
	s.registerExecutionRoutes(mux)
	s.registerOperationRoutes(mux)
	s.registerRequestRoutes(mux)
	s.registerEmailTemplateRoutes(mux)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeErr maps a domain error to an HTTP status and writes it, following
// §7's error taxonomy (ValidationError/NotFoundError/OperationError).
func writeErr(w http.ResponseWriter, err error) {
	switch e := err.(type) {
	case *fluxerrors.ValidationError:
		writeError(w, http.StatusBadRequest, e.Error())
	case *fluxerrors.NotFoundError:
		writeError(w, http.StatusNotFound, e.Error())
	case *fluxerrors.OperationError:
		writeError(w, http.StatusUnprocessableEntity, e.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}
