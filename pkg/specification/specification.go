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

// Package specification provides typed parsing, serialization and
// verification of workflow specifications: the YAML documents that
// describe a workflow's steps, rule lists and actions.
package specification

import (
	"fmt"

	"gopkg.in/yaml.v3"

	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

// Specification is the parsed form of a workflow's DSL document (§4.1).
type Specification struct {
	Name       string                 `yaml:"name"`
	Entry      string                 `yaml:"entry"`
	Schema     map[string]interface{} `yaml:"schema,omitempty"`
	Layout     map[string]interface{} `yaml:"layout,omitempty"`
	Parameters map[string]interface{} `yaml:"parameters,omitempty"`
	Products   map[string]Surrogate   `yaml:"products,omitempty"`

	Preoperation  RuleList `yaml:"preoperation,omitempty"`
	Postoperation RuleList `yaml:"postoperation,omitempty"`
	Prerun        RuleList `yaml:"prerun,omitempty"`
	Postrun       RuleList `yaml:"postrun,omitempty"`

	Steps map[string]*Step `yaml:"steps"`
}

// Step is a single node in a workflow (§4.1).
type Step struct {
	Description   string                 `yaml:"description,omitempty"`
	Operation     string                 `yaml:"operation"`
	Parameters    map[string]interface{} `yaml:"parameters,omitempty"`
	Preoperation  RuleList               `yaml:"preoperation,omitempty"`
	Postoperation RuleList               `yaml:"postoperation,omitempty"`
	Timeout       int                    `yaml:"timeout,omitempty"`
	// Extract is an optional jq expression applied to a process callback's
	// output before it is merged into "${step.output}" (§4.3 supplement),
	// for executors that report output shaped for jq rather than a flat map.
	Extract string `yaml:"extract,omitempty"`
}

// Surrogate is an opaque reference to an external entity, carrying the
// entity's type and id.
type Surrogate struct {
	Entity string `yaml:"entity"`
	ID     string `yaml:"id"`
}

// Parse decodes a YAML specification document.
func Parse(data []byte) (*Specification, error) {
	var spec Specification
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, &fluxerrors.ValidationError{
			Field:      "specification",
			Message:    fmt.Sprintf("invalid workflow specification: %s", err.Error()),
			Suggestion: "check YAML syntax",
		}
	}
	return &spec, nil
}

// Marshal serializes the specification back to YAML.
func (s *Specification) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// Verify guarantees the three invariants of §4.1 before any run is created:
//  1. entry references a declared step;
//  2. layout and schema fields are in bijection, if layout is present;
//  3. every execute-step action anywhere in the document references an
//     existing step.
func (s *Specification) Verify() error {
	if s.Entry == "" {
		return &fluxerrors.ValidationError{Field: "entry", Message: "entry is required"}
	}
	if _, ok := s.Steps[s.Entry]; !ok {
		return &fluxerrors.ValidationError{
			Field:   "entry",
			Message: fmt.Sprintf("entry step %q is not declared in steps", s.Entry),
		}
	}

	if s.Layout != nil {
		if err := verifyLayoutSchemaBijection(s.Layout, s.Schema); err != nil {
			return err
		}
	}

	for name, step := range s.Steps {
		if step.Operation == "" {
			return &fluxerrors.ValidationError{
				Field:   fmt.Sprintf("steps.%s.operation", name),
				Message: "operation is required",
			}
		}
		if err := step.Preoperation.verifyStepReferences(s.Steps, fmt.Sprintf("steps.%s.preoperation", name)); err != nil {
			return err
		}
		if err := step.Postoperation.verifyStepReferences(s.Steps, fmt.Sprintf("steps.%s.postoperation", name)); err != nil {
			return err
		}
	}

	for _, list := range []struct {
		name string
		list RuleList
	}{
		{"preoperation", s.Preoperation},
		{"postoperation", s.Postoperation},
		{"prerun", s.Prerun},
		{"postrun", s.Postrun},
	} {
		if err := list.list.verifyStepReferences(s.Steps, list.name); err != nil {
			return err
		}
	}

	return nil
}

// verifyLayoutSchemaBijection checks that every layout element names a
// schema property and vice versa.
func verifyLayoutSchemaBijection(layout, schema map[string]interface{}) error {
	props, _ := schema["properties"].(map[string]interface{})
	if props == nil {
		props = map[string]interface{}{}
	}

	elements, _ := layout["elements"].([]interface{})
	seen := make(map[string]bool, len(elements))
	for _, e := range elements {
		field, _ := e.(string)
		if field == "" {
			if m, ok := e.(map[string]interface{}); ok {
				field, _ = m["field"].(string)
			}
		}
		if field == "" {
			continue
		}
		if _, ok := props[field]; !ok {
			return &fluxerrors.OperationError{
				Token:   "mismatch-form-layout-schema",
				Message: fmt.Sprintf("layout references undeclared schema field %q", field),
			}
		}
		seen[field] = true
	}

	for field := range props {
		if !seen[field] {
			return &fluxerrors.OperationError{
				Token:   "mismatch-form-layout-schema",
				Message: fmt.Sprintf("schema field %q has no layout element", field),
			}
		}
	}
	return nil
}
