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

// Package cache holds the element cache: the only process-local mutable
// singleton in the system (§5). It maps a workflow id to its parsed
// Specification, invalidated by the workflow's modification timestamp.
// Stale entries are harmless: the old specification remains a valid
// interpretation until superseded, so readers compute-on-miss rather than
// proactively evicting.
package cache

import (
	"sync"
	"time"

	"github.com/fluxwork/fluxwork/pkg/specification"
)

type key struct {
	id       string
	modified time.Time
}

// Cache is the element cache described by §2 and §5.
type Cache struct {
	mu      sync.RWMutex
	entries map[key]*specification.Specification
}

// New constructs an empty element cache.
func New() *Cache {
	return &Cache{entries: make(map[key]*specification.Specification)}
}

// Get returns the cached parse for (id, modified), or nil if no entry is
// cached at that exact modification timestamp.
func (c *Cache) Get(id string, modified time.Time) *specification.Specification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[key{id: id, modified: modified}]
}

// Put memoizes spec under (id, modified). It is the cache's own mutator;
// callers never write to the underlying map directly.
func (c *Cache) Put(id string, modified time.Time, spec *specification.Specification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key{id: id, modified: modified}] = spec
}

// GetOrParse returns the cached parse for (id, modified) if present;
// otherwise it parses raw, verifies it, memoizes, and returns the result.
// A verification failure is never cached.
func (c *Cache) GetOrParse(id string, modified time.Time, raw []byte) (*specification.Specification, error) {
	if spec := c.Get(id, modified); spec != nil {
		return spec, nil
	}

	spec, err := specification.Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := spec.Verify(); err != nil {
		return nil, err
	}

	c.Put(id, modified, spec)
	return spec, nil
}

// Invalidate drops every cached entry for id, regardless of modification
// timestamp. Nothing in this module calls it; deleting a workflow through
// the API leaves its cached entries in place.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.id == id {
			delete(c.entries, k)
		}
	}
}

// Len reports the number of memoized entries (diagnostics/tests only).
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
