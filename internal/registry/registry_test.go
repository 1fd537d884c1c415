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

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxwork/fluxwork/internal/dispatcher"
	"github.com/fluxwork/fluxwork/internal/store"
	"github.com/fluxwork/fluxwork/pkg/specification"
)

type fakeOperationStore struct {
	records map[string]*store.OperationRecord
}

func newFakeOperationStore() *fakeOperationStore {
	return &fakeOperationStore{records: map[string]*store.OperationRecord{}}
}

func (f *fakeOperationStore) Create(ctx context.Context, op *store.OperationRecord) error {
	f.records[op.ID] = op
	return nil
}

func (f *fakeOperationStore) Get(ctx context.Context, id string) (*store.OperationRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, assert.AnError
	}
	return rec, nil
}

func (f *fakeOperationStore) Update(ctx context.Context, op *store.OperationRecord) error {
	f.records[op.ID] = op
	return nil
}

func (f *fakeOperationStore) List(ctx context.Context, filter store.OperationFilter) ([]*store.OperationRecord, error) {
	var out []*store.OperationRecord
	for _, rec := range f.records {
		if filter.Phase != "" && rec.Phase != filter.Phase {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

type fakeDispatcher struct {
	queues    []dispatcher.Queue
	processes []dispatcher.CreateProcessRequest
}

func (f *fakeDispatcher) CreateProcess(ctx context.Context, req dispatcher.CreateProcessRequest) (*dispatcher.Process, error) {
	f.processes = append(f.processes, req)
	return &dispatcher.Process{ID: "proc-1", Status: "pending"}, nil
}
func (f *fakeDispatcher) UpdateProcessStatus(ctx context.Context, processID, status string) error {
	return nil
}
func (f *fakeDispatcher) CreateQueue(ctx context.Context, q dispatcher.Queue) error {
	f.queues = append(f.queues, q)
	return nil
}
func (f *fakeDispatcher) CreateEvent(ctx context.Context, e dispatcher.Event) error { return nil }
func (f *fakeDispatcher) QueueHTTPTask(ctx context.Context, task dispatcher.HTTPTask) error {
	return nil
}
func (f *fakeDispatcher) QueueEventTask(ctx context.Context, task dispatcher.EventTask) error {
	return nil
}

func testOperation() *specification.Operation {
	return &specification.Operation{
		ID:    "ns:send-email",
		Name:  "Send Email",
		Phase: specification.PhaseOperation,
		Outcomes: map[string]specification.Outcome{
			"sent": {Name: "sent", Kind: specification.OutcomeSuccess},
		},
	}
}

func TestCreatePublishesQueueWithLiteralPrefix(t *testing.T) {
	ctx := context.Background()
	st := newFakeOperationStore()
	disp := &fakeDispatcher{}
	reg := New(st, disp, nil)

	op := testOperation()
	require.NoError(t, reg.Create(ctx, op))

	require.Len(t, disp.queues, 1)
	assert.Equal(t, "flux-operation:ns:send-email", disp.queues[0].QueueID)
	assert.Equal(t, "/operations/ns:send-email/process", disp.queues[0].Endpoint)
}

func TestGetRoundTripsOutcomes(t *testing.T) {
	ctx := context.Background()
	st := newFakeOperationStore()
	disp := &fakeDispatcher{}
	reg := New(st, disp, nil)

	op := testOperation()
	require.NoError(t, reg.Create(ctx, op))

	got, err := reg.Get(ctx, "ns:send-email")
	require.NoError(t, err)
	assert.Equal(t, op.Name, got.Name)
	assert.Contains(t, got.Outcomes, "sent")
}

func TestInitiateUsesQueueID(t *testing.T) {
	ctx := context.Background()
	st := newFakeOperationStore()
	disp := &fakeDispatcher{}
	reg := New(st, disp, nil)

	require.NoError(t, reg.Create(ctx, testOperation()))

	proc, err := reg.Initiate(ctx, "ns:send-email", map[string]interface{}{"to": "a@example.com"}, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "proc-1", proc.ID)
	require.Len(t, disp.processes, 1)
	assert.Equal(t, "flux-operation:ns:send-email", disp.processes[0].QueueID)
}

func TestCreateRejectsInvalidOperation(t *testing.T) {
	ctx := context.Background()
	reg := New(newFakeOperationStore(), &fakeDispatcher{}, nil)
	err := reg.Create(ctx, &specification.Operation{ID: "bad"})
	require.Error(t, err)
}
