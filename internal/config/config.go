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

// Package config loads fluxworkd's daemon configuration: the persistence
// backend, the scheduler the dispatcher talks to, and the listen/log
// settings for the resource API.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	fluxerrors "github.com/fluxwork/fluxwork/pkg/errors"
)

// StoreConfig selects and configures the persistence backend (§5).
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// DSN is the driver-specific connection string (a file path for
	// sqlite, a libpq connection string for postgres).
	DSN string `yaml:"dsn"`
}

// DispatcherConfig configures the HTTP client the dispatcher uses to call
// the external scheduler (§6).
type DispatcherConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
}

// ServerConfig configures the resource API listener (§6).
type ServerConfig struct {
	Address string `yaml:"address"`
}

// LogConfig configures internal/log.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete fluxworkd daemon configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// Default returns a Config suitable for local development: an in-process
// SQLite store and no configured scheduler.
func Default() Config {
	return Config{
		Store:      StoreConfig{Driver: "sqlite", DSN: "fluxwork.db"},
		Dispatcher: DispatcherConfig{Timeout: 30 * time.Second, RetryAttempts: 3, RetryBackoff: 100 * time.Millisecond},
		Server:     ServerConfig{Address: ":8080"},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads and validates a Config from path, filling in Default() for
// fields the document leaves zero.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &fluxerrors.ValidationError{Field: "config", Message: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the invariants fluxworkd needs before it can start.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return &fluxerrors.ValidationError{Field: "store.driver", Message: "must be one of sqlite, postgres"}
	}
	if c.Store.DSN == "" {
		return &fluxerrors.ValidationError{Field: "store.dsn", Message: "is required"}
	}
	if c.Server.Address == "" {
		return &fluxerrors.ValidationError{Field: "server.address", Message: "is required"}
	}
	return nil
}
