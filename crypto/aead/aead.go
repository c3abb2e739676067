// Copyright (C) 2025 shadowwire
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

// Package aead implements the wire- and storage-level authenticated
// encryption primitive: AES-256-GCM under a SHA-256-derived key, with
// the nonce carried alongside the ciphertext as nonce‖ciphertext‖tag.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/mk-samoilov/shadowwire-server/internal/metrics"
)

const (
	nonceSize = 12
	tagSize   = 16
	// MinSealedLen is the shortest a sealed blob can be: an empty
	// plaintext still carries a full nonce and tag.
	MinSealedLen = nonceSize + tagSize
)

// ErrAuth is returned by Open when the tag doesn't verify or the input
// is too short to contain a nonce and tag.
var ErrAuth = errors.New("aead: authentication failed")

// Key wraps a derived 32-byte AES-256-GCM key. It is stateless beyond
// those bytes and safe for concurrent use.
type Key struct {
	gcm cipher.AEAD
}

// NewKey derives a Key from raw key material of any length by hashing
// it with SHA-256, exactly as the original Crypter.format_key did.
func NewKey(raw []byte) (Key, error) {
	sum := sha256.Sum256(raw)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return Key{}, fmt.Errorf("aead: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return Key{}, fmt.Errorf("aead: new gcm: %w", err)
	}
	return Key{gcm: gcm}, nil
}

// Seal encrypts plaintext under a freshly random nonce and returns
// nonce‖ciphertext‖tag.
func (k Key) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		metrics.AEADOperations.WithLabelValues("seal", "failure").Inc()
		return nil, fmt.Errorf("aead: nonce: %w", err)
	}
	sealed := k.gcm.Seal(nonce, nonce, plaintext, nil)
	metrics.AEADOperations.WithLabelValues("seal", "success").Inc()
	return sealed, nil
}

// Open splits off the leading nonce and trailing tag and verifies the
// sealed blob, returning the plaintext.
func (k Key) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < MinSealedLen {
		metrics.AEADOperations.WithLabelValues("open", "failure").Inc()
		return nil, ErrAuth
	}
	nonce := sealed[:nonceSize]
	ciphertext := sealed[nonceSize:]
	plaintext, err := k.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		metrics.AEADOperations.WithLabelValues("open", "failure").Inc()
		return nil, ErrAuth
	}
	metrics.AEADOperations.WithLabelValues("open", "success").Inc()
	return plaintext, nil
}
