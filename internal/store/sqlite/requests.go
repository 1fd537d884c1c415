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

package sqlite

import (
	"context"
	"database/sql"

	"github.com/fluxwork/fluxwork/internal/store"
	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

func (b *Backend) CreateRequest(ctx context.Context, r *store.Request) error {
	slotOrder, err := marshal(r.SlotOrder)
	if err != nil {
		return err
	}
	slots, err := marshal(r.Slots)
	if err != nil {
		return err
	}
	products, err := marshal(r.Products)
	if err != nil {
		return err
	}
	_, err = b.db.ExecContext(ctx, `
		INSERT INTO requests (id, name, status, originator, assignee, creator, template_id,
			slot_order, claimed, completed, slots, products)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Status, r.Originator, r.Assignee, r.Creator, r.TemplateID,
		slotOrder, nullTime(r.Claimed), nullTime(r.Completed), slots, products)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return &fluxerrors.OperationError{Token: "duplicate-request-name", Message: "a request with this name already exists"}
		}
		return err
	}
	return nil
}

func (b *Backend) GetRequest(ctx context.Context, id string) (*store.Request, error) {
	row := b.db.QueryRowContext(ctx, requestSelect+` WHERE id = ?`, id)
	return scanRequest(row)
}

func (b *Backend) GetRequestByName(ctx context.Context, name string) (*store.Request, error) {
	row := b.db.QueryRowContext(ctx, requestSelect+` WHERE name = ?`, name)
	return scanRequest(row)
}

func (b *Backend) ListRequests(ctx context.Context, filter store.RequestFilter) ([]*store.Request, error) {
	query := requestSelect + ` WHERE 1=1`
	var args []interface{}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Assignee != "" {
		query += ` AND assignee = ?`
		args = append(args, filter.Assignee)
	}
	query += ` ORDER BY name`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.Request
	for rows.Next() {
		r, err := scanRequestRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (b *Backend) ListMessages(ctx context.Context, requestID string) ([]*store.Message, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, request_id, author, body, created FROM messages
		WHERE request_id = ? ORDER BY created`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (b *Backend) PutEmailTemplate(ctx context.Context, t *store.EmailTemplate) (*store.EmailTemplate, error) {
	row := b.db.QueryRowContext(ctx, `SELECT id, template FROM email_templates WHERE template = ?`, t.Template)
	var existing store.EmailTemplate
	err := row.Scan(&existing.ID, &existing.Template)
	if err == nil {
		return &existing, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	if _, err := b.db.ExecContext(ctx, `INSERT INTO email_templates (id, template) VALUES (?, ?)`, t.ID, t.Template); err != nil {
		return nil, err
	}
	return t, nil
}

func (b *Backend) GetEmailTemplate(ctx context.Context, id string) (*store.EmailTemplate, error) {
	var t store.EmailTemplate
	err := b.db.QueryRowContext(ctx, `SELECT id, template FROM email_templates WHERE id = ?`, id).Scan(&t.ID, &t.Template)
	if err == sql.ErrNoRows {
		return nil, &fluxerrors.NotFoundError{Resource: "email_template", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const requestSelect = `SELECT id, name, status, originator, assignee, creator, template_id,
	slot_order, claimed, completed, slots, products FROM requests`

func scanRequest(row *sql.Row) (*store.Request, error) {
	return scanRequestRow(row)
}

func scanRequestRow(row rowScanner) (*store.Request, error) {
	var r store.Request
	var slotOrder, claimed, completed, slots, products sql.NullString
	err := row.Scan(&r.ID, &r.Name, &r.Status, &r.Originator, &r.Assignee, &r.Creator,
		&r.TemplateID, &slotOrder, &claimed, &completed, &slots, &products)
	if err == sql.ErrNoRows {
		return nil, &fluxerrors.NotFoundError{Resource: "request"}
	}
	if err != nil {
		return nil, err
	}
	if err := unmarshal(slotOrder, &r.SlotOrder); err != nil {
		return nil, err
	}
	if r.Slots, err = unmarshalSlots(slots); err != nil {
		return nil, err
	}
	if r.Products, err = unmarshalSurrogates(products); err != nil {
		return nil, err
	}
	if r.Claimed, err = parseNullTime(claimed); err != nil {
		return nil, err
	}
	if r.Completed, err = parseNullTime(completed); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanMessage(row rowScanner) (*store.Message, error) {
	var m store.Message
	var author, body, created sql.NullString
	if err := row.Scan(&m.ID, &m.RequestID, &author, &body, &created); err != nil {
		return nil, err
	}
	m.Author = author.String
	m.Body = body.String
	t, err := parseNullTime(created)
	if err != nil {
		return nil, err
	}
	if t != nil {
		m.Created = *t
	}
	return &m, nil
}

func unmarshalSlots(ns sql.NullString) (map[string]store.Slot, error) {
	out := map[string]store.Slot{}
	if !ns.Valid || ns.String == "" {
		return out, nil
	}
	if err := unmarshal(ns, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func unmarshalSurrogates(ns sql.NullString) (map[string]store.Surrogate, error) {
	out := map[string]store.Surrogate{}
	if !ns.Valid || ns.String == "" {
		return out, nil
	}
	if err := unmarshal(ns, &out); err != nil {
		return nil, err
	}
	return out, nil
}
