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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fluxwork.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: postgres
  dsn: "postgres://localhost/fluxwork"
dispatcher:
  base_url: "http://scheduler.internal"
server:
  address: ":9090"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "http://scheduler.internal", cfg.Dispatcher.BaseURL)
	assert.Equal(t, ":9090", cfg.Server.Address)
	// Fields the document didn't set keep the Default() value.
	assert.Equal(t, Default().Log, cfg.Log)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "mysql"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyDSN(t *testing.T) {
	cfg := Default()
	cfg.Store.DSN = ""
	assert.Error(t, cfg.Validate())
}
