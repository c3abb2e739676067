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

// Package session holds the per-connection state that a worker
// creates on accept and tears down when its read loop exits: the
// peer address, the running flag, and the AEAD key the handshake
// produces.
package session

import (
	"sync/atomic"

	"github.com/mk-samoilov/shadowwire-server/crypto/aead"
	"github.com/mk-samoilov/shadowwire-server/crypto/dhpool"
	"github.com/mk-samoilov/shadowwire-server/dispatch"
)

// Session is live state for exactly one accepted connection. The zero
// value is not usable; construct with New.
type Session struct {
	PeerAddr   string
	Pool       *dhpool.Pool
	Dispatcher *dispatch.Dispatcher

	running atomic.Bool
	key     atomic.Pointer[aead.Key]
}

// New creates a Session in the running state, bound to the shared DH
// pool and dispatcher. The session key is absent until SetKey is
// called after a successful handshake.
func New(peerAddr string, pool *dhpool.Pool, dispatcher *dispatch.Dispatcher) *Session {
	s := &Session{PeerAddr: peerAddr, Pool: pool, Dispatcher: dispatcher}
	s.running.Store(true)
	return s
}

// SetKey records the session key derived by the handshake.
func (s *Session) SetKey(key aead.Key) {
	s.key.Store(&key)
}

// Key returns the session's AEAD key and whether the handshake has
// completed.
func (s *Session) Key() (aead.Key, bool) {
	k := s.key.Load()
	if k == nil {
		return aead.Key{}, false
	}
	return *k, true
}

// Running reports whether the session is still considered live.
func (s *Session) Running() bool {
	return s.running.Load()
}

// Stop marks the session as no longer running. Idempotent, safe to
// call from any goroutine. It does not unblock a pending read by
// itself; Worker.Stop pairs it with a connection deadline for that.
func (s *Session) Stop() {
	s.running.Store(false)
}
