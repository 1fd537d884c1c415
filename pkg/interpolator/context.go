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

// Package interpolator evaluates ${a.b.c} expressions and parameter maps
// against a nested value context.
package interpolator

// Context is the nested value tree an Interpolator resolves paths against,
// e.g. the engine's {run: {id, name, status, parameters}, step: {id, name,
// status, outcome, parameters, output: {...}}}.
type Context map[string]interface{}

// Clone returns a deep copy so merges never alias caller-owned maps.
func (c Context) Clone() Context {
	return deepCopy(c).(Context)
}

func deepCopy(v interface{}) interface{} {
	switch val := v.(type) {
	case Context:
		out := make(Context, len(val))
		for k, e := range val {
			out[k] = deepCopy(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, e := range val {
			out[k] = deepCopy(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

// merge deep-merges src into dst, later (src) values winning on scalar
// conflicts; maps at the same key are merged recursively rather than
// replaced.
func merge(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, sv := range src {
		if dv, ok := dst[k]; ok {
			dm, dIsMap := asMap(dv)
			sm, sIsMap := asMap(sv)
			if dIsMap && sIsMap {
				dst[k] = merge(dm, sm)
				continue
			}
		}
		dst[k] = sv
	}
	return dst
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case Context:
		return m, true
	}
	return nil, false
}

// resolvePath navigates a dot-separated path through nested maps.
func resolvePath(path string, ctx map[string]interface{}) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	parts := splitPath(path)
	var current interface{} = ctx
	for _, part := range parts {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}
