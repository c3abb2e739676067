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
	"os"
	"regexp"
)

// envVarPattern matches ${VAR} or ${VAR:default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// SubstituteEnvVars replaces every ${VAR} or ${VAR:default} in input
// with the named environment variable's value, or the default if the
// variable is unset or empty.
func SubstituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// SubstituteEnvVarsInConfig substitutes environment variables into
// the path fields, the endpoint host, the log level, and the DB DSN.
func SubstituteEnvVarsInConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	cfg.Paths.LogsDir = SubstituteEnvVars(cfg.Paths.LogsDir)
	cfg.Paths.PluginsDir = SubstituteEnvVars(cfg.Paths.PluginsDir)
	cfg.Paths.StorageDir = SubstituteEnvVars(cfg.Paths.StorageDir)
	cfg.ClientTCPEndpoint.Host = SubstituteEnvVars(cfg.ClientTCPEndpoint.Host)
	cfg.Logging.Level = SubstituteEnvVars(cfg.Logging.Level)

	if cfg.DB != nil {
		cfg.DB.DSN = SubstituteEnvVars(cfg.DB.DSN)
	}
}
