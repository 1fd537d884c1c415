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

package specification

import (
	"fmt"

	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

// RuleList is an ordered sequence of condition-guarded rules (§4.1, §4.3).
type RuleList struct {
	Rules []Rule `yaml:"rules,omitempty"`
}

// Rule is a single condition-guarded unit of a rule list.
type Rule struct {
	Description string   `yaml:"description,omitempty"`
	Condition   string   `yaml:"condition,omitempty"`
	Actions     []Action `yaml:"actions,omitempty"`
	Terminal    bool     `yaml:"terminal,omitempty"`
}

// ActionKind tags the variant an Action carries (§9: tagged variant
// replacing the source's class-based dispatch).
type ActionKind string

const (
	ActionExecuteOperation  ActionKind = "execute-operation"
	ActionExecuteStep       ActionKind = "execute-step"
	ActionIgnoreStepFailure ActionKind = "ignore-step-failure"
	ActionPromoteProducts   ActionKind = "promote-products"
	ActionUpdateEnvironment ActionKind = "update-environment"
)

// Action is a tagged unit of work within a rule. Exactly the fields
// relevant to Kind are populated; the rest are zero.
type Action struct {
	Kind ActionKind `yaml:"action"`

	// execute-operation / execute-step
	Operation  string                 `yaml:"operation,omitempty"`
	Step       string                 `yaml:"step,omitempty"`
	Parameters map[string]interface{} `yaml:"parameters,omitempty"`

	// promote-products
	Products map[string]string `yaml:"products,omitempty"`

	// update-environment
	Environment map[string]string `yaml:"parameters_env,omitempty"`
}

// UnmarshalYAML decodes an Action from its map representation, reading the
// "action" discriminator and the fields appropriate to that kind.
func (a *Action) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw map[string]interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	kind, _ := raw["action"].(string)
	a.Kind = ActionKind(kind)

	if v, ok := raw["operation"].(string); ok {
		a.Operation = v
	}
	if v, ok := raw["step"].(string); ok {
		a.Step = v
	}
	if v, ok := raw["parameters"].(map[string]interface{}); ok {
		switch a.Kind {
		case ActionUpdateEnvironment:
			a.Environment = toStringMap(v)
		default:
			a.Parameters = v
		}
	}
	if v, ok := raw["products"].(map[string]interface{}); ok {
		a.Products = toStringMap(v)
	}

	switch a.Kind {
	case ActionExecuteOperation, ActionExecuteStep, ActionIgnoreStepFailure,
		ActionPromoteProducts, ActionUpdateEnvironment:
		return nil
	default:
		return &fluxerrors.ValidationError{
			Field:   "action",
			Message: fmt.Sprintf("unknown action kind %q", kind),
		}
	}
}

func toStringMap(m map[string]interface{}) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// verifyStepReferences checks invariant 3 of §4.1: every execute-step
// action in the list references an existing step.
func (l RuleList) verifyStepReferences(steps map[string]*Step, path string) error {
	for ri, rule := range l.Rules {
		for ai, action := range rule.Actions {
			if action.Kind != ActionExecuteStep {
				continue
			}
			if _, ok := steps[action.Step]; !ok {
				return &fluxerrors.OperationError{
					Token: "invalid-execute-step",
					Message: fmt.Sprintf(
						"%s.rules[%d].actions[%d] references undeclared step %q",
						path, ri, ai, action.Step,
					),
				}
			}
		}
	}
	return nil
}
