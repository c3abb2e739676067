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

import "fmt"

// validLogLevels are the levels internal/logger.Level recognizes.
var validLogLevels = map[string]bool{
	"DEBUG": true,
	"INFO":  true,
	"WARN":  true,
	"ERROR": true,
	"FATAL": true,
}

// ValidationError describes one configuration problem. Level is
// either "error" (Load fails) or "warn" (Load succeeds, the problem is
// logged by the caller).
type ValidationError struct {
	Field   string
	Message string
	Level   string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConfiguration checks cfg for problems a loaded file cannot
// fix by falling back to a default. It never mutates cfg.
func ValidateConfiguration(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.ClientTCPEndpoint.Port <= 0 || cfg.ClientTCPEndpoint.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "client_tcp_endpoint.port",
			Message: fmt.Sprintf("must be between 1 and 65535, got %d", cfg.ClientTCPEndpoint.Port),
			Level:   "error",
		})
	}

	if cfg.ClientTCPEndpoint.MaxAvailableConnections < 0 {
		errs = append(errs, ValidationError{
			Field:   "client_tcp_endpoint.max_available_connections",
			Message: "must not be negative",
			Level:   "error",
		})
	}

	if !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unrecognized level %q", cfg.Logging.Level),
			Level:   "warn",
		})
	}

	if cfg.DB != nil && cfg.DB.DSN == "" {
		errs = append(errs, ValidationError{
			Field:   "db.dsn",
			Message: "db block present but dsn is empty",
			Level:   "error",
		})
	}

	return errs
}
