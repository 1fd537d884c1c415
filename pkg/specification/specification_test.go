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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeStepYAML = `
name: three-step
entry: s0
steps:
  s0:
    operation: test-op
    postoperation:
      rules:
        - actions:
            - action: execute-step
              step: s1
  s1:
    operation: test-op
    postoperation:
      rules:
        - actions:
            - action: execute-step
              step: s2
  s2:
    operation: test-op
`

func TestParseAndVerify(t *testing.T) {
	spec, err := Parse([]byte(threeStepYAML))
	require.NoError(t, err)
	require.NoError(t, spec.Verify())
	assert.Equal(t, "s0", spec.Entry)
	assert.Len(t, spec.Steps, 3)
	assert.Equal(t, ActionExecuteStep, spec.Steps["s0"].Postoperation.Rules[0].Actions[0].Kind)
}

func TestVerifyRejectsUnknownEntry(t *testing.T) {
	spec, err := Parse([]byte(`
name: bad
entry: missing
steps:
  s0:
    operation: test-op
`))
	require.NoError(t, err)
	assert.Error(t, spec.Verify())
}

func TestVerifyRejectsUnknownExecuteStep(t *testing.T) {
	spec, err := Parse([]byte(`
name: bad
entry: s0
steps:
  s0:
    operation: test-op
    postoperation:
      rules:
        - actions:
            - action: execute-step
              step: nowhere
`))
	require.NoError(t, err)
	err = spec.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid-execute-step")
}

func TestVerifyRejectsLayoutSchemaMismatch(t *testing.T) {
	spec, err := Parse([]byte(`
name: bad
entry: s0
schema:
  properties:
    region: {type: string}
layout:
  elements: [other]
steps:
  s0:
    operation: test-op
`))
	require.NoError(t, err)
	err = spec.Verify()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mismatch-form-layout-schema")
}

func TestRoundTripIdentityModuloOrdering(t *testing.T) {
	spec, err := Parse([]byte(threeStepYAML))
	require.NoError(t, err)

	out, err := spec.Marshal()
	require.NoError(t, err)

	reparsed, err := Parse(out)
	require.NoError(t, err)

	assert.Equal(t, spec.Name, reparsed.Name)
	assert.Equal(t, spec.Entry, reparsed.Entry)
	assert.Equal(t, len(spec.Steps), len(reparsed.Steps))
	for name, step := range spec.Steps {
		assert.Equal(t, step.Operation, reparsed.Steps[name].Operation)
	}
}
