// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"fmt"
	"os"
)

// LoaderOptions configures Load.
type LoaderOptions struct {
	// Path is the config file to read. If it does not exist, Load
	// proceeds with an all-defaults Config instead of failing —
	// matching -c pointing at a file that -i/--gen_conf_file hasn't
	// written yet.
	Path string
	// SkipEnvSubstitution disables ${VAR} substitution in string
	// fields.
	SkipEnvSubstitution bool
	// SkipValidation disables ValidateConfiguration's error-level
	// checks.
	SkipValidation bool
}

// DefaultLoaderOptions returns the options Load uses when called with
// no arguments.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{Path: "config.yaml"}
}

// Load reads, defaults, substitutes, and validates a Config. A missing
// file at opts.Path is not an error: Load falls back to Default().
func Load(opts ...LoaderOptions) (*Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	cfg := &Config{}
	if options.Path != "" {
		if _, err := os.Stat(options.Path); err == nil {
			loaded, err := LoadFromFile(options.Path)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: stat %s: %w", options.Path, err)
		}
	}

	setDefaults(cfg)

	if !options.SkipEnvSubstitution {
		SubstituteEnvVarsInConfig(cfg)
	}
	applyEnvironmentOverrides(cfg)

	if !options.SkipValidation {
		for _, e := range ValidateConfiguration(cfg) {
			if e.Level == "error" {
				return nil, fmt.Errorf("config: validation failed: %w", e)
			}
		}
	}

	if err := ensurePaths(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvironmentOverrides lets a small set of environment variables
// win over both the file and its defaults, the same highest-priority
// slot the original env-override pass occupies.
func applyEnvironmentOverrides(cfg *Config) {
	if level := os.Getenv("SHADOWWIRE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if host := os.Getenv("SHADOWWIRE_HOST"); host != "" {
		cfg.ClientTCPEndpoint.Host = host
	}
	if dsn := os.Getenv("SHADOWWIRE_DB_DSN"); dsn != "" {
		if cfg.DB == nil {
			cfg.DB = &DBConfig{}
		}
		cfg.DB.DSN = dsn
	}
}

// MustLoad calls Load and panics on error; for CLI entrypoints where a
// bad config file should abort startup immediately.
func MustLoad(opts ...LoaderOptions) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// WriteDefault writes an all-defaults Config to path, for
// -i/--gen_conf_file.
func WriteDefault(path string) error {
	return SaveToFile(Default(), path)
}
