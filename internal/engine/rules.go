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

package engine

import (
	"context"

	"github.com/fluxwork/fluxwork/internal/store"
	"github.com/fluxwork/fluxwork/pkg/specification"
)

// evaluateRuleList runs RuleList.evaluate (§4.3): each rule whose condition
// is true (or empty) has its actions applied in order; a terminal rule
// stops evaluation of the remaining rules in the list.
func (e *Engine) evaluateRuleList(ctx context.Context, tx store.Tx, wf *store.Workflow, run *store.Run, env *Environment, list specification.RuleList) (*Result, bool, error) {
	result := &Result{}
	ignoreFailure := false

	for _, rule := range list.Rules {
		ok, err := env.Interpolator.Evaluate(rule.Condition)
		if err != nil {
			return result, ignoreFailure, err
		}
		if !ok {
			continue
		}

		for _, action := range rule.Actions {
			actionResult, ig, err := e.applyAction(ctx, tx, wf, run, env, action)
			if err != nil {
				return result, ignoreFailure, err
			}
			result.absorb(actionResult)
			if ig {
				ignoreFailure = true
			}
		}

		if rule.Terminal {
			break
		}
	}

	return result, ignoreFailure, nil
}

// applyAction dispatches a single tagged Action (§9's tagged-variant
// replacement for the source's class-based actions).
func (e *Engine) applyAction(ctx context.Context, tx store.Tx, wf *store.Workflow, run *store.Run, env *Environment, action specification.Action) (*Result, bool, error) {
	result := &Result{}

	switch action.Kind {
	case specification.ActionIgnoreStepFailure:
		return result, true, nil

	case specification.ActionExecuteStep:
		_, stepResult, err := e.InitiateStep(ctx, tx, wf, run, action.Step)
		if err != nil {
			return result, false, err
		}
		result.absorb(stepResult)
		return result, false, nil

	case specification.ActionExecuteOperation:
		interpolatedParams := interpolateParameters(env, action.Parameters)
		opID := action.Operation
		result.then(func(ctx context.Context) error {
			_, err := e.registry.Initiate(ctx, opID, interpolatedParams, 0)
			return err
		})
		return result, false, nil

	case specification.ActionPromoteProducts:
		if run.Products == nil {
			run.Products = map[string]store.Surrogate{}
		}
		for productKey, sourceField := range action.Products {
			resolved := env.Interpolator.Resolve(sourceField)
			run.Products[productKey] = store.Surrogate{Entity: productKey, ID: resolved}
		}
		return result, false, tx.SaveRun(ctx, run)

	case specification.ActionUpdateEnvironment:
		updates := map[string]interface{}{}
		for key, expr := range action.Environment {
			updates[key] = env.Interpolator.Resolve(expr)
		}
		if run.Parameters == nil {
			run.Parameters = map[string]interface{}{}
		}
		for k, v := range updates {
			run.Parameters[k] = v
		}
		return result, false, tx.SaveRun(ctx, run)

	default:
		return result, false, nil
	}
}

func interpolateParameters(env *Environment, params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		if s, ok := v.(string); ok {
			out[k] = env.Interpolator.Resolve(s)
			continue
		}
		out[k] = v
	}
	return out
}
