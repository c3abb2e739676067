// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default values seeded by the original config_parser.py and
// reproduced here so -i/--gen_conf_file and a missing config file both
// converge on the same server behavior.
const (
	DefaultHost                    = "0.0.0.0"
	DefaultPort                    = 5477
	DefaultMaxAvailableConnections = 950
	DefaultLogLevel                = "DEBUG"
	DefaultLogsDir                 = "logs"
	DefaultPluginsDir              = "plugins"
	DefaultStorageDir              = "storage"
)

// Default returns a Config populated entirely with default values.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

// LoadFromFile reads a config file and unmarshals it as YAML or, for a
// ".json" extension, as JSON. Fields absent from the file keep their
// Go zero value; callers that want defaults filled in call
// setDefaults (Load does this automatically).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s as json: %w", path, err)
		}
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s as yaml: %w", path, err)
	}
	return cfg, nil
}

// SaveToFile writes cfg to path, choosing JSON or YAML by file
// extension (YAML for anything other than ".json").
func SaveToFile(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// setDefaults fills every zero-valued field with its default. It is
// idempotent: a field already set by the loaded file is left alone.
func setDefaults(cfg *Config) {
	if cfg.ClientTCPEndpoint.Host == "" {
		cfg.ClientTCPEndpoint.Host = DefaultHost
	}
	if cfg.ClientTCPEndpoint.Port == 0 {
		cfg.ClientTCPEndpoint.Port = DefaultPort
	}
	if cfg.ClientTCPEndpoint.MaxAvailableConnections == 0 {
		cfg.ClientTCPEndpoint.MaxAvailableConnections = DefaultMaxAvailableConnections
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Paths.LogsDir == "" {
		cfg.Paths.LogsDir = DefaultLogsDir
	}
	if cfg.Paths.PluginsDir == "" {
		cfg.Paths.PluginsDir = DefaultPluginsDir
	}
	if cfg.Paths.StorageDir == "" {
		cfg.Paths.StorageDir = DefaultStorageDir
	}
}

// ensurePaths creates every directory named in cfg.Paths that does not
// already exist.
func ensurePaths(cfg *Config) error {
	for _, dir := range []string{cfg.Paths.LogsDir, cfg.Paths.PluginsDir, cfg.Paths.StorageDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}
