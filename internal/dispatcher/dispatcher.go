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

// Package dispatcher is a thin HTTP client over the external scheduler
// service. It never runs jobs itself: every blocking piece of work — a
// remote process, a delayed HTTP callback, an event subscription — is
// handed off to the scheduler, and the result comes back later as a task
// delivered to one of our own task endpoints.
package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Process is a remote unit of work the scheduler executes on our behalf.
type Process struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Queue publishes an operation's endpoint so the scheduler knows where to
// deliver work tagged for it.
type Queue struct {
	QueueID  string `json:"queue_id"`
	Subject  string `json:"subject"`
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
}

// Event is a named occurrence other scheduled work can subscribe to.
type Event struct {
	Subject string         `json:"subject"`
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}

// HTTPTask schedules a one-shot callback to Endpoint, no sooner than Delay
// from now, carrying Payload as the JSON request body.
type HTTPTask struct {
	Endpoint string         `json:"endpoint"`
	Payload  map[string]any `json:"payload,omitempty"`
	Delay    time.Duration  `json:"delay,omitempty"`
}

// EventTask schedules a callback to Endpoint that fires the next time
// Subject/Name is published via CreateEvent, rather than after a fixed delay.
type EventTask struct {
	Endpoint string         `json:"endpoint"`
	Subject  string         `json:"subject"`
	Name     string         `json:"name"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// CreateProcessRequest describes the remote work to initiate.
type CreateProcessRequest struct {
	QueueID string         `json:"queue_id"`
	Input   map[string]any `json:"input"`
	Timeout time.Duration  `json:"timeout,omitempty"`
}

// Dispatcher is the scheduler-facing surface the registry and coordinator
// depend on. It is intentionally small: every method is a single remote
// call, with no retry policy or queueing logic of its own beyond what the
// underlying *http.Client already provides.
type Dispatcher interface {
	CreateProcess(ctx context.Context, req CreateProcessRequest) (*Process, error)
	UpdateProcessStatus(ctx context.Context, processID, status string) error
	CreateQueue(ctx context.Context, q Queue) error
	CreateEvent(ctx context.Context, e Event) error
	QueueHTTPTask(ctx context.Context, task HTTPTask) error
	QueueEventTask(ctx context.Context, task EventTask) error
}

// HTTPDispatcher is the production Dispatcher, talking to the scheduler
// service over plain JSON/HTTP.
type HTTPDispatcher struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// New returns a Dispatcher bound to baseURL using client for transport.
// client is expected to already carry retry and logging behavior (see
// pkg/httpclient.New).
func New(baseURL string, client *http.Client) *HTTPDispatcher {
	return &HTTPDispatcher{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// WithRateLimit returns a copy of d that throttles outbound scheduler calls
// to rps requests per second with the given burst, so a run storm on our
// side can't itself become a denial-of-service against the scheduler.
func (d *HTTPDispatcher) WithRateLimit(rps float64, burst int) *HTTPDispatcher {
	nd := *d
	nd.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return &nd
}

func (d *HTTPDispatcher) CreateProcess(ctx context.Context, req CreateProcessRequest) (*Process, error) {
	var proc Process
	if err := d.do(ctx, http.MethodPost, "/processes", req, &proc); err != nil {
		return nil, err
	}
	return &proc, nil
}

func (d *HTTPDispatcher) UpdateProcessStatus(ctx context.Context, processID, status string) error {
	body := map[string]any{"status": status}
	return d.do(ctx, http.MethodPatch, "/processes/"+processID, body, nil)
}

func (d *HTTPDispatcher) CreateQueue(ctx context.Context, q Queue) error {
	return d.do(ctx, http.MethodPost, "/queues", q, nil)
}

func (d *HTTPDispatcher) CreateEvent(ctx context.Context, e Event) error {
	return d.do(ctx, http.MethodPost, "/events", e, nil)
}

func (d *HTTPDispatcher) QueueHTTPTask(ctx context.Context, task HTTPTask) error {
	return d.do(ctx, http.MethodPost, "/tasks/http", task, nil)
}

func (d *HTTPDispatcher) QueueEventTask(ctx context.Context, task EventTask) error {
	return d.do(ctx, http.MethodPost, "/tasks/event", task, nil)
}

func (d *HTTPDispatcher) do(ctx context.Context, method, path string, body, out interface{}) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return &GoneError{Op: method + " " + path, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &TransportError{Op: method + " " + path, StatusCode: resp.StatusCode, Body: string(msg)}
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// TransportError wraps a failed scheduler call. Callbacks treat it as an
// infrastructure error: logged, swallowed for side effects, surfaced for
// primary operations.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dispatcher: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("dispatcher: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// GoneError indicates the scheduler no longer has the referenced resource
// (process, queue, task). Per the abort-races policy, callers must treat
// this as a tolerable race, not a failure.
type GoneError struct {
	Op         string
	StatusCode int
}

func (e *GoneError) Error() string {
	return fmt.Sprintf("dispatcher: %s: resource gone (status %d)", e.Op, e.StatusCode)
}
