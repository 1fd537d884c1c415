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

package interpolator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

// placeholderPattern matches ${a.b.c} occurrences.
var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Interpolator resolves ${a.b.c} placeholders and rule conditions against
// a nested Context. It is immutable after construction except through
// Merge, which deep-merges a partial context and returns a new Interpolator
// sharing the same compiled-expression cache.
type Interpolator struct {
	ctx   Context
	cache *exprCache
}

type exprCache struct {
	mu      sync.RWMutex
	program map[string]*vm.Program
}

func newExprCache() *exprCache {
	return &exprCache{program: make(map[string]*vm.Program)}
}

// New constructs an Interpolator over the given context. A nil context is
// treated as empty.
func New(ctx Context) *Interpolator {
	if ctx == nil {
		ctx = Context{}
	}
	return &Interpolator{ctx: ctx.Clone(), cache: newExprCache()}
}

// Context returns the interpolator's nested value tree. Callers must treat
// it as read-only; use Merge to change it.
func (i *Interpolator) Context() Context {
	return i.ctx
}

// Merge deep-merges values into the context and returns a new Interpolator;
// the receiver is left unchanged.
func (i *Interpolator) Merge(values map[string]interface{}) *Interpolator {
	merged := merge(i.ctx.Clone(), values)
	return &Interpolator{ctx: Context(merged), cache: i.cache}
}

// Resolve replaces every ${dotted.path} occurrence in subject with the
// corresponding context value, rendered as a literal. Unresolvable paths
// are left untouched so that a best-effort partial resolution over
// multi-pass parameter sets is possible.
func (i *Interpolator) Resolve(subject string) string {
	return placeholderPattern.ReplaceAllStringFunc(subject, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-1])
		value, ok := resolvePath(path, i.ctx)
		if !ok {
			return match
		}
		return literal(value)
	})
}

// InterpolateValue walks a parameter value (map/slice/string/scalar),
// resolving ${...} placeholders in every string leaf and coercing the
// result against the field descriptor. Use this for step/operation
// parameter maps (spec §4.2/§4.3 step 3/5).
func (i *Interpolator) InterpolateValue(field FieldDescriptor, subject interface{}) interface{} {
	resolved := i.resolveDeep(subject)
	return field.Interpolate(resolved)
}

func (i *Interpolator) resolveDeep(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		if raw, ok := i.wholePlaceholder(t); ok {
			return raw
		}
		return i.Resolve(t)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = i.resolveDeep(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for idx, e := range t {
			out[idx] = i.resolveDeep(e)
		}
		return out
	default:
		return v
	}
}

// wholePlaceholder returns the raw (untyped) resolved value when subject is
// exactly one placeholder and nothing else, so that ${run.parameters} can
// yield a map rather than its string rendering.
func (i *Interpolator) wholePlaceholder(subject string) (interface{}, bool) {
	m := placeholderPattern.FindStringSubmatch(subject)
	if m == nil || m[0] != subject {
		return nil, false
	}
	path := strings.TrimSpace(m[1])
	return resolvePath(path, i.ctx)
}

// Evaluate compiles (and caches) expression and runs it against the
// context, returning its boolean result. An empty expression is true.
func (i *Interpolator) Evaluate(expression string) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}

	program, err := i.compile(expression)
	if err != nil {
		return false, &fluxerrors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("failed to compile condition: %s", err.Error()),
			Suggestion: "check expression syntax and ensure all referenced variables exist",
		}
	}

	result, err := expr.Run(program, map[string]interface{}(i.ctx))
	if err != nil {
		return false, &fluxerrors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("condition evaluation failed: %s", err.Error()),
			Suggestion: "verify that all referenced variables exist in the run context",
		}
	}

	b, ok := result.(bool)
	if !ok {
		return false, &fluxerrors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("condition must return boolean, got %T (%v)", result, result),
			Suggestion: "use comparison operators (==, !=, <, >, etc.) or boolean functions",
		}
	}
	return b, nil
}

func (i *Interpolator) compile(expression string) (*vm.Program, error) {
	i.cache.mu.RLock()
	if p, ok := i.cache.program[expression]; ok {
		i.cache.mu.RUnlock()
		return p, nil
	}
	i.cache.mu.RUnlock()

	program, err := expr.Compile(expression,
		expr.Env(map[string]interface{}(i.ctx)),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	i.cache.mu.Lock()
	i.cache.program[expression] = program
	i.cache.mu.Unlock()
	return program, nil
}

// literal renders a context value for substitution into a condition or
// parameter template string.
func literal(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
