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
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fluxwork/fluxwork/internal/dispatcher"
	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

// Result collects work deferred until after the enclosing transaction
// commits, mirroring internal/engine.Result's call_after_commit
// discipline (§4.4) for this independent, parallel state machine.
type Result struct {
	AfterCommit []func(ctx context.Context) error
}

func (r *Result) then(fn func(ctx context.Context) error) { r.AfterCommit = append(r.AfterCommit, fn) }

// Run executes every deferred callback in order, stopping at the first
// error.
func (r *Result) Run(ctx context.Context) error {
	for _, fn := range r.AfterCommit {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Engine drives the request state machine (§4.5).
type Engine struct {
	store      store.Store
	dispatcher dispatcher.Dispatcher
	directory  SubjectDirectory
	sender     EmailSender
	logger     *slog.Logger
}

// New constructs a request Engine. directory/sender may be nil, in which
// case requests behave as pure state machines with no email side effect.
func New(st store.Store, disp dispatcher.Dispatcher, directory SubjectDirectory, sender EmailSender, logger *slog.Logger) *Engine {
	if directory == nil {
		directory = NoDirectory{}
	}
	if sender == nil {
		sender = &LogSender{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, dispatcher: disp, directory: directory, sender: sender,
		logger: logger.With(slog.String("component", "requests"))}
}

// Create validates and persists a new Request in the "prepared" status.
func (e *Engine) Create(ctx context.Context, req *store.Request, slotOrder []string) error {
	if err := validateSlotOrder(slotOrder, req.Slots); err != nil {
		return err
	}
	req.SlotOrder = slotOrder
	if req.Status == "" {
		req.Status = store.RequestPrepared
	}
	return e.store.CreateRequest(ctx, req)
}

// withRequest opens a transaction, locks req (silent no-op if it no
// longer exists), runs fn, and commits — the request-engine analog of
// coordinator.withRun.
func (e *Engine) withRequest(ctx context.Context, id string, fn func(ctx context.Context, tx store.Tx, req *store.Request) (*Result, error)) (*Result, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	req, err := tx.LockRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock request %s: %w", id, err)
	}
	if req == nil {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		return nil, nil
	}

	result, err := fn(ctx, tx, req)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return result, nil
}

// Update applies a status transition (optionally carrying a message) to
// request id, then schedules the transition's side effects: moving to
// "pending" schedules initiate-request; reaching any terminal status
// publishes a request:completed event.
func (e *Engine) Update(ctx context.Context, id, newStatus string, message *store.Message) (*Result, error) {
	return e.withRequest(ctx, id, func(ctx context.Context, tx store.Tx, req *store.Request) (*Result, error) {
		result := &Result{}
		previousStatus := req.Status

		if err := applyTransition(req, newStatus, message); err != nil {
			return nil, err
		}
		if err := tx.SaveRequest(ctx, req); err != nil {
			return nil, fmt.Errorf("save request %s: %w", id, err)
		}
		if message != nil {
			message.RequestID = req.ID
			if message.ID == "" {
				message.ID = uuid.New().String()
			}
			if message.Created.IsZero() {
				message.Created = time.Now().UTC()
			}
			if err := tx.AppendMessage(ctx, message); err != nil {
				return nil, fmt.Errorf("append message to request %s: %w", id, err)
			}
		}

		if req.Status == store.RequestPending && previousStatus != store.RequestPending {
			reqID := req.ID
			result.then(func(ctx context.Context) error { return e.InitiateRequest(ctx, reqID) })
		}
		if store.IsTerminalRequestStatus(req.Status) {
			result.then(e.publishEvent("request:completed", req.ID))
		}

		return result, nil
	})
}

// CancelRequest, DeclineRequest and CompleteRequestOperation are the named
// task handlers §4.4 lists as "request-side analogs" of the run tasks;
// each is a thin Update wrapper naming its target status explicitly so
// callers cannot pass an arbitrary (and possibly invalid) status string.
func (e *Engine) CancelRequest(ctx context.Context, id string, message *store.Message) (*Result, error) {
	return e.Update(ctx, id, store.RequestCanceled, message)
}

func (e *Engine) DeclineRequest(ctx context.Context, id string, message *store.Message) (*Result, error) {
	return e.Update(ctx, id, store.RequestDeclined, message)
}

func (e *Engine) CompleteRequestOperation(ctx context.Context, id string, message *store.Message) (*Result, error) {
	return e.Update(ctx, id, store.RequestCompleted, message)
}

func (e *Engine) ClaimRequest(ctx context.Context, id string, message *store.Message) (*Result, error) {
	return e.Update(ctx, id, store.RequestClaimed, message)
}

// ReassignAssignee reassigns every request currently assigned to from to
// the subject to, publishing request:changed for each. Unlike the
// original implementation's hardcoded super-admin fallback, the target
// subject is always caller-supplied (Open Question, §9).
func (e *Engine) ReassignAssignee(ctx context.Context, from, to string) ([]string, error) {
	all, err := e.store.ListRequests(ctx, store.RequestFilter{Assignee: from})
	if err != nil {
		return nil, fmt.Errorf("list requests assigned to %s: %w", from, err)
	}

	var reassigned []string
	for _, req := range all {
		req.Assignee = to
		if err := e.saveReassigned(ctx, req); err != nil {
			return reassigned, err
		}
		reassigned = append(reassigned, req.ID)
		if err := e.publishEvent("request:changed", req.ID)(ctx); err != nil {
			e.logger.Error("failed to publish request:changed", slog.String("request_id", req.ID), slog.Any("error", err))
		}
	}
	return reassigned, nil
}

func (e *Engine) saveReassigned(ctx context.Context, req *store.Request) error {
	_, err := e.withRequest(ctx, req.ID, func(ctx context.Context, tx store.Tx, locked *store.Request) (*Result, error) {
		locked.Assignee = req.Assignee
		if err := tx.SaveRequest(ctx, locked); err != nil {
			return nil, err
		}
		return &Result{}, nil
	})
	return err
}

// InitiateRequest implements the initiate-request task (§4.5): it
// resolves the assignee and originator from the subject directory and,
// if the assignee has an email address, renders the linked template and
// sends it. A request whose participants cannot be resolved, or whose
// assignee has no email, is left pending with no notification — the same
// "return false, do nothing further" behavior as the original model.
func (e *Engine) InitiateRequest(ctx context.Context, id string) error {
	req, err := e.store.GetRequest(ctx, id)
	if err != nil {
		return fmt.Errorf("load request %s: %w", id, err)
	}

	assignee, err := e.directory.Get(ctx, req.Assignee)
	if err != nil || assignee == nil || assignee.Email == "" {
		return nil
	}
	originator, err := e.directory.Get(ctx, req.Originator)
	if err != nil || originator == nil {
		return nil
	}

	if req.TemplateID == "" {
		return &fluxerrors.OperationError{Token: "invalid-template", Message: "request has no linked email template"}
	}
	tmpl, err := e.store.GetEmailTemplate(ctx, req.TemplateID)
	if err != nil {
		return fmt.Errorf("load email template %s: %w", req.TemplateID, err)
	}

	params := map[string]interface{}{
		"request":    req,
		"originator": originator,
		"assignee":   assignee,
		"form":       GenerateForm(req),
		"entities":   GenerateEntities(req),
	}
	body, err := renderTemplate(tmpl, params)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("New request from %s %s", originator.FirstName, originator.LastName)
	return e.sender.Send(ctx, Email{From: originator.Email, To: assignee.Email, Subject: subject, Body: body})
}

// publishEvent returns an AfterCommit callback that fires a dispatcher
// event for a request, tolerating the absence of a configured
// dispatcher (nil) for embedders that run the request engine standalone.
func (e *Engine) publishEvent(name, requestID string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if e.dispatcher == nil {
			return nil
		}
		return e.dispatcher.CreateEvent(ctx, dispatcher.Event{
			Subject: requestID,
			Name:    name,
			Payload: map[string]interface{}{"id": requestID},
		})
	}
}
