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

// Package config loads and validates the server's YAML configuration
// file: listen endpoint, on-disk paths, log level, and the optional
// SQL-backed store block.
package config

import "fmt"

// Config is the root configuration structure, unmarshaled directly
// from YAML (or JSON, for SaveToFile/LoadFromFile callers that prefer
// it).
type Config struct {
	Paths             PathsConfig             `yaml:"paths" json:"paths"`
	ClientTCPEndpoint ClientTCPEndpointConfig `yaml:"client_tcp_endpoint" json:"client_tcp_endpoint"`
	Logging           LoggingConfig           `yaml:"logging" json:"logging"`
	DB                *DBConfig               `yaml:"db,omitempty" json:"db,omitempty"`
}

// PathsConfig holds the on-disk directories the server reads from and
// writes to. Each is created (mkdir -p) if missing.
type PathsConfig struct {
	LogsDir    string `yaml:"logs_dir" json:"logs_dir"`
	PluginsDir string `yaml:"plugins_dir" json:"plugins_dir"`
	StorageDir string `yaml:"storage_dir" json:"storage_dir"`
}

// ClientTCPEndpointConfig is the bind address and connection ceiling
// for the client-facing TCP listener.
type ClientTCPEndpointConfig struct {
	Host                    string `yaml:"host" json:"host"`
	Port                    int    `yaml:"port" json:"port"`
	MaxAvailableConnections int    `yaml:"max_available_connections" json:"max_available_connections"`
}

// Address formats the endpoint as a host:port string suitable for
// net.Listen.
func (c ClientTCPEndpointConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// DBConfig is the optional block for the SQL-backed storage variant.
// Left nil, the server uses the sealed flat-file store exclusively.
type DBConfig struct {
	Driver string `yaml:"driver,omitempty" json:"driver,omitempty"`
	DSN    string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}
