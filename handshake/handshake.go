// SPDX-License-Identifier: LGPL-3.0-or-later

// Package handshake performs the per-connection Diffie-Hellman
// exchange that establishes a session key, immediately after accept
// and before any framed request/response traffic.
package handshake

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/mk-samoilov/shadowwire-server/crypto/aead"
	"github.com/mk-samoilov/shadowwire-server/crypto/dhpool"
	"github.com/mk-samoilov/shadowwire-server/internal/metrics"
	"github.com/mk-samoilov/shadowwire-server/wire"
)

// ErrPeerClosed is returned when the peer disconnects cleanly before
// sending its public key — not a fatal error, just an early close.
var ErrPeerClosed = errors.New("handshake: peer closed before completing exchange")

// Result is the outcome of a completed handshake: the session AEAD
// key ready for frame traffic.
type Result struct {
	SessionKey aead.Key
}

// Run drives the server side of the exchange over conn, using pool
// for parameters and a private key. The wire order is fixed: p, then
// g, then the server's public value, then the client's public value
// is read back.
//
// Any short read on the client's public key before the first byte is
// ErrPeerClosed; anything else — a short read mid-value, or a
// crypto/decode failure — is fatal and wrapped.
func Run(rw io.ReadWriter, pool *dhpool.Pool) (Result, error) {
	metrics.HandshakesInitiated.Inc()
	start := time.Now()

	params, err := pool.Parameters()
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return Result{}, fmt.Errorf("handshake: parameters: %w", err)
	}

	if err := wire.WriteValue(rw, params.P.Bytes()); err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return Result{}, fmt.Errorf("handshake: send p: %w", err)
	}
	if err := wire.WriteValue(rw, params.G.Bytes()); err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return Result{}, fmt.Errorf("handshake: send g: %w", err)
	}

	priv, err := pool.Take()
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return Result{}, fmt.Errorf("handshake: take private key: %w", err)
	}
	defer pool.Return(priv)

	serverPublic := priv.PublicBytes()
	if err := wire.WriteValue(rw, serverPublic); err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return Result{}, fmt.Errorf("handshake: send server public: %w", err)
	}

	clientPublicBytes, err := wire.ReadValue(rw)
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return Result{}, fmt.Errorf("handshake: read client public: %w", err)
	}
	if clientPublicBytes == nil {
		metrics.HandshakesCompleted.WithLabelValues("peer_closed").Inc()
		return Result{}, ErrPeerClosed
	}

	clientPublic := new(big.Int).SetBytes(clientPublicBytes)
	sessionKeyBytes, err := dhpool.Derive(priv, clientPublic)
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return Result{}, fmt.Errorf("handshake: derive session key: %w", err)
	}

	sessionKey, err := aead.NewKey(sessionKeyBytes)
	if err != nil {
		metrics.HandshakesCompleted.WithLabelValues("failure").Inc()
		return Result{}, fmt.Errorf("handshake: wrap session key: %w", err)
	}

	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	metrics.HandshakeDuration.Observe(time.Since(start).Seconds())
	return Result{SessionKey: sessionKey}, nil
}
