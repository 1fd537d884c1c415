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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorkflowFile(t *testing.T, dir, name, workflowName string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	doc := "name: " + workflowName + "\nentry: s0\nsteps:\n  s0:\n    operation: test-op\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func TestLoaderReloadPopulatesCache(t *testing.T) {
	dir := t.TempDir()
	writeWorkflowFile(t, dir, "alpha.yaml", "alpha")
	writeWorkflowFile(t, dir, "beta.yaml", "beta")

	l := NewLoader(dir, "", nil)
	require.NoError(t, l.Reload())

	all := l.All()
	assert.Len(t, all, 2)
	spec, ok := l.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, "alpha", spec.Name)
}

func TestLoaderReloadIgnoresNonMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	writeWorkflowFile(t, dir, "alpha.yaml", "alpha")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a workflow"), 0o600))

	l := NewLoader(dir, "", nil)
	require.NoError(t, l.Reload())

	assert.Len(t, l.All(), 1)
}

func TestLoaderReloadFailsOnInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [oops"), 0o600))

	l := NewLoader(dir, "", nil)
	assert.Error(t, l.Reload())
}

func TestLoaderWatchPicksUpNewFile(t *testing.T) {
	dir := t.TempDir()
	writeWorkflowFile(t, dir, "alpha.yaml", "alpha")

	l := NewLoader(dir, "", nil)
	require.NoError(t, l.Reload())
	require.NoError(t, l.Watch())
	defer l.Stop()

	writeWorkflowFile(t, dir, "beta.yaml", "beta")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := l.Get("beta"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("loader did not pick up new workflow file via watch")
}
