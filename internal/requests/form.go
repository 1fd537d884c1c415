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

import "github.com/fluxwork/fluxwork/internal/store"

// builtinSlotTypes are the slot-type tokens the form generator renders as
// plain text fields; any other token is treated as a reference to an
// external entity and rendered as a UUID-backed gridselector (§4.5).
var builtinSlotTypes = map[string]bool{
	"text":     true,
	"textarea": true,
}

// Field describes one entry in a Form's schema.
type Field struct {
	Type      string `json:"type"`
	Multiline bool   `json:"multiline,omitempty"`
	// Source names the external entity kind a gridselector field resolves
	// against; empty for built-in text fields.
	Source string `json:"source,omitempty"`
}

// Element describes one entry in a Form's layout.
type Element struct {
	Field string `json:"field"`
	Label string `json:"label"`
	Type  string `json:"type,omitempty"`
}

// Form is the typed input schema a request's slots project into, per the
// request's slot_order (or map iteration order, if unset).
type Form struct {
	Schema map[string]Field `json:"schema"`
	Layout []Element        `json:"layout"`
}

// GenerateForm projects req's slots into a Form (§4.5's generate_form):
// built-in slot types ("text", "textarea") become text fields; anything
// else becomes a UUID field sourced from an external entity, intended for
// a UI gridselector.
func GenerateForm(req *store.Request) Form {
	order := req.SlotOrder
	if len(order) == 0 {
		for token := range req.Slots {
			order = append(order, token)
		}
	}

	form := Form{Schema: make(map[string]Field, len(order)), Layout: make([]Element, 0, len(order))}
	for _, token := range order {
		slot, ok := req.Slots[token]
		if !ok {
			continue
		}
		if builtinSlotTypes[slot.Type] {
			form.Schema[token] = Field{Type: "text", Multiline: slot.Type == "textarea"}
			form.Layout = append(form.Layout, Element{Field: token, Label: slot.Title})
			continue
		}
		form.Schema[token] = Field{Type: "uuid", Source: slot.Type}
		form.Layout = append(form.Layout, Element{Field: token, Label: slot.Title, Type: "gridselector"})
	}
	return form
}

// GenerateEntities inverts req's products into a token to entity-id map
// (§4.5's generate_entities).
func GenerateEntities(req *store.Request) map[string]string {
	entities := make(map[string]string, len(req.Products))
	for token, product := range req.Products {
		entities[token] = product.ID
	}
	return entities
}
