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
	"strconv"
)

// FieldDescriptor is a typed field description for a schema property,
// shaped like a JSON Schema fragment: {"type": "integer", "properties": {...}}.
// It is the coercion half of interpolation: once ${...} paths are resolved
// to strings, Interpolate walks the subject against the descriptor and
// converts leaf string values to the descriptor's declared type.
type FieldDescriptor map[string]interface{}

// Kind returns the descriptor's declared "type", or "" if untyped (in which
// case values pass through unconverted).
func (f FieldDescriptor) Kind() string {
	if f == nil {
		return ""
	}
	t, _ := f["type"].(string)
	return t
}

// Property returns the descriptor for a named object property, or nil.
func (f FieldDescriptor) Property(name string) FieldDescriptor {
	props, _ := f["properties"].(map[string]interface{})
	if props == nil {
		return nil
	}
	switch p := props[name].(type) {
	case map[string]interface{}:
		return FieldDescriptor(p)
	case FieldDescriptor:
		return p
	}
	return nil
}

// Items returns the descriptor for array elements, or nil.
func (f FieldDescriptor) Items() FieldDescriptor {
	switch it := f["items"].(type) {
	case map[string]interface{}:
		return FieldDescriptor(it)
	case FieldDescriptor:
		return it
	}
	return nil
}

// Interpolate coerces subject (already string-substituted) into the types
// named by the descriptor, recursing into objects and arrays. Values with
// no corresponding descriptor, or descriptors with no declared type, are
// returned unchanged.
func (f FieldDescriptor) Interpolate(subject interface{}) interface{} {
	switch f.Kind() {
	case "object":
		m, ok := subject.(map[string]interface{})
		if !ok {
			return subject
		}
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = f.Property(k).Interpolate(v)
		}
		return out
	case "array":
		arr, ok := subject.([]interface{})
		if !ok {
			return subject
		}
		items := f.Items()
		out := make([]interface{}, len(arr))
		for i, v := range arr {
			out[i] = items.Interpolate(v)
		}
		return out
	case "integer":
		return coerceInt(subject)
	case "number":
		return coerceFloat(subject)
	case "boolean":
		return coerceBool(subject)
	case "string":
		return coerceString(subject)
	default:
		return subject
	}
}

func coerceInt(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
		return v
	case float64:
		return int64(t)
	default:
		return v
	}
}

func coerceFloat(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		if n, err := strconv.ParseFloat(t, 64); err == nil {
			return n
		}
		return v
	default:
		return v
	}
}

func coerceBool(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		if b, err := strconv.ParseBool(t); err == nil {
			return b
		}
		return v
	default:
		return v
	}
}

func coerceString(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return t
	case int, int64, float64, bool:
		return toLiteralString(t)
	default:
		return v
	}
}

func toLiteralString(v interface{}) string {
	switch t := v.(type) {
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}
