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
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowGetCommandPrintsSpecification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/workflows/wf-42", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"ID":            "wf-42",
			"Name":          "onboard-customer",
			"Specification": "name: onboard-customer\nentry: send-welcome\n",
		})
	}))
	defer server.Close()

	origAddr := serverAddr
	serverAddr = server.URL
	defer func() { serverAddr = origAddr }()

	cmd := newWorkflowGetCommand()
	out := captureStdout(t, func() {
		require.NoError(t, cmd.RunE(cmd, []string{"wf-42"}))
	})

	assert.Contains(t, out, "wf-42")
	assert.Contains(t, out, "onboard-customer")
	assert.Contains(t, out, "entry: send-welcome")
}

func TestToGeneratePayloadMapsOperations(t *testing.T) {
	ops := []generateOperation{
		{Operation: "send-email", Description: "notify the customer"},
		{Operation: "provision-account", Description: ""},
	}

	payload := toGeneratePayload(ops)

	require.Len(t, payload, 2)
	assert.Equal(t, "send-email", payload[0]["operation"])
	assert.Equal(t, "notify the customer", payload[0]["description"])
	assert.Equal(t, "provision-account", payload[1]["operation"])
}
