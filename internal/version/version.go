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

// Package version reads the server's release version and wire
// protocol version from two plain text files at caller-supplied paths.
package version

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Info is the pair loaded from VERSION_FILE and PROTOCOL_VERSION_FILE.
type Info struct {
	Version         string
	ProtocolVersion int
}

// Load reads versionPath's first line as the free-form release version
// and protocolPath's first line as an integer wire protocol version.
//
// The original reads the version file with readline(0), which always
// returns an empty string — Load reads the full first line instead.
func Load(versionPath, protocolPath string) (Info, error) {
	vers, err := readFirstLine(versionPath)
	if err != nil {
		return Info{}, fmt.Errorf("version: read %s: %w", versionPath, err)
	}

	protoLine, err := readFirstLine(protocolPath)
	if err != nil {
		return Info{}, fmt.Errorf("version: read %s: %w", protocolPath, err)
	}
	proto, err := strconv.Atoi(protoLine)
	if err != nil {
		return Info{}, fmt.Errorf("version: parse protocol version %q: %w", protoLine, err)
	}

	return Info{Version: vers, ProtocolVersion: proto}, nil
}

func readFirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("empty file")
	}
	return strings.TrimSpace(scanner.Text()), nil
}
