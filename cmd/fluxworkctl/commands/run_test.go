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

package commands

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything written to it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(out)
}

func TestRunCreateCommandPostsAndPrintsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/runs", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "wf-42", body["workflow_id"])
		assert.Equal(t, map[string]interface{}{"region": "us-east"}, body["parameters"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"ID":         "run-99",
			"WorkflowID": "wf-42",
			"Status":     "pending",
		})
	}))
	defer server.Close()

	origAddr := serverAddr
	serverAddr = server.URL
	defer func() { serverAddr = origAddr }()

	cmd := newRunCreateCommand()
	require.NoError(t, cmd.Flags().Set("workflow", "wf-42"))
	require.NoError(t, cmd.Flags().Set("params", `{"region":"us-east"}`))

	out := captureStdout(t, func() {
		require.NoError(t, cmd.RunE(cmd, nil))
	})

	assert.Contains(t, out, "run-99")
	assert.Contains(t, out, "Pending")
}

func TestRunCreateCommandRejectsInvalidParams(t *testing.T) {
	cmd := newRunCreateCommand()
	require.NoError(t, cmd.Flags().Set("workflow", "wf-1"))
	require.NoError(t, cmd.Flags().Set("params", "not-json"))

	err := cmd.RunE(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --params")
}

func TestRunGetCommandPrintsRunFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/runs/run-99", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"ID":         "run-99",
			"WorkflowID": "wf-42",
			"Status":     "succeeded",
		})
	}))
	defer server.Close()

	origAddr := serverAddr
	serverAddr = server.URL
	defer func() { serverAddr = origAddr }()

	cmd := newRunGetCommand()
	out := captureStdout(t, func() {
		require.NoError(t, cmd.RunE(cmd, []string{"run-99"}))
	})

	assert.Contains(t, out, "run-99")
	assert.Contains(t, out, "wf-42")
	assert.Contains(t, out, "Succeeded")
}
