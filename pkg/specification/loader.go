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
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Loader reads workflow YAML documents from a directory and keeps an
// in-memory cache of the parsed result, refreshed either by an explicit
// Reload or (with Watch) automatically on filesystem change. This is a
// local-development convenience on top of §4.1's parse contract; nothing in
// this module writes the loaded specifications to the store or the element
// cache.
type Loader struct {
	dir     string
	pattern string
	logger  *slog.Logger

	mu    sync.RWMutex
	specs map[string]*Specification

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLoader constructs a Loader rooted at dir, matching files against
// pattern (a doublestar glob, e.g. "**/*.yaml"; empty defaults to that).
func NewLoader(dir, pattern string, logger *slog.Logger) *Loader {
	if pattern == "" {
		pattern = "**/*.yaml"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		dir:     dir,
		pattern: pattern,
		logger:  logger.With(slog.String("component", "specification.loader")),
		specs:   make(map[string]*Specification),
	}
}

// Reload walks dir, parses every file whose relative path matches pattern,
// and replaces the cache atomically. A single bad file fails the whole
// reload, so a half-edited workflow can never silently knock out others.
func (l *Loader) Reload() error {
	next := make(map[string]*Specification)

	err := filepath.WalkDir(l.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.dir, path)
		if err != nil {
			return err
		}
		matched, err := doublestar.Match(l.pattern, filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("invalid loader pattern %q: %w", l.pattern, err)
		}
		if !matched {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", rel, err)
		}
		spec, err := Parse(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", rel, err)
		}
		next[spec.Name] = spec
		return nil
	})
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.specs = next
	l.mu.Unlock()
	return nil
}

// Get returns a cached specification by name.
func (l *Loader) Get(name string) (*Specification, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	spec, ok := l.specs[name]
	return spec, ok
}

// All returns every cached specification, keyed by name.
func (l *Loader) All() map[string]*Specification {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]*Specification, len(l.specs))
	for k, v := range l.specs {
		out[k] = v
	}
	return out
}

// Watch starts an fsnotify watch on dir and reloads on every write, create
// or rename event, logging (but not propagating) reload errors so one bad
// edit doesn't take the watcher down. Call Stop to release the watch.
func (l *Loader) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(l.dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", l.dir, err)
	}

	l.watcher = w
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})

	go func() {
		defer close(l.doneCh)
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := l.Reload(); err != nil {
					l.logger.Error("reload after filesystem change failed", slog.Any("error", err))
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Error("watcher error", slog.Any("error", err))
			case <-l.stopCh:
				return
			}
		}
	}()

	return nil
}

// Stop releases the watch started by Watch. Safe to call if Watch was
// never called.
func (l *Loader) Stop() {
	if l.watcher == nil {
		return
	}
	close(l.stopCh)
	l.watcher.Close()
	<-l.doneCh
	l.watcher = nil
}
