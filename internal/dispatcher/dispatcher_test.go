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

package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProcess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/processes", r.URL.Path)
		var req CreateProcessRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "flux-operation:send-email", req.QueueID)
		json.NewEncoder(w).Encode(Process{ID: "proc-1", Status: "pending"})
	}))
	defer srv.Close()

	d := New(srv.URL, srv.Client())
	proc, err := d.CreateProcess(context.Background(), CreateProcessRequest{
		QueueID: "flux-operation:send-email",
		Input:   map[string]any{"to": "ops@example.com"},
		Timeout: 30 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "proc-1", proc.ID)
}

func TestUpdateProcessStatusGoneIsTolerable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	d := New(srv.URL, srv.Client())
	err := d.UpdateProcessStatus(context.Background(), "proc-1", "completed")
	require.Error(t, err)
	var gone *GoneError
	require.ErrorAs(t, err, &gone)
}

func TestCreateQueuePublishesEndpoint(t *testing.T) {
	var gotBody Queue
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/queues", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	d := New(srv.URL, srv.Client())
	err := d.CreateQueue(context.Background(), Queue{
		QueueID:  "flux-operation:send-email",
		Subject:  "send-email",
		Name:     "Send Email",
		Endpoint: "https://fluxwork.example/operations/send-email/process",
	})
	require.NoError(t, err)
	assert.Equal(t, "flux-operation:send-email", gotBody.QueueID)
}

func TestWithRateLimitThrottlesCalls(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	d := New(srv.URL, srv.Client()).WithRateLimit(1000, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, d.CreateQueue(ctx, Queue{QueueID: "flux-operation:a"}))
	require.NoError(t, d.CreateQueue(ctx, Queue{QueueID: "flux-operation:b"}))
	assert.Equal(t, 2, calls)
}

func TestServerErrorSurfacesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	d := New(srv.URL, srv.Client())
	err := d.QueueHTTPTask(context.Background(), HTTPTask{Endpoint: "https://fluxwork.example/runs/run-1/task"})
	require.Error(t, err)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusInternalServerError, te.StatusCode)
}
