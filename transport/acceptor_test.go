// SPDX-License-Identifier: LGPL-3.0-or-later

package transport

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mk-samoilov/shadowwire-server/crypto/dhpool"
	"github.com/mk-samoilov/shadowwire-server/dispatch"
	"github.com/mk-samoilov/shadowwire-server/storage"
)

func newTestAcceptor(t *testing.T) *Acceptor {
	t.Helper()
	store, err := storage.Open(t.TempDir(), "accounts_table")
	require.NoError(t, err)

	pool := dhpool.New(128, 4)
	d := dispatch.New()

	a := New(Config{Address: "127.0.0.1:0"}, pool, d, store, nil)
	require.NoError(t, a.Start())
	t.Cleanup(func() { _ = a.Stop() })
	return a
}

func TestAcceptorAcceptsAndCompletesHandshake(t *testing.T) {
	a := newTestAcceptor(t)

	clientConn, err := net.DialTimeout("tcp", a.Addr().String(), time.Second)
	require.NoError(t, err)
	defer clientConn.Close()

	client := newTestClient(t, clientConn, dhpool.New(128, 2))

	payload, err := json.Marshal(map[string]any{"hello": "world"})
	require.NoError(t, err)
	client.send(t, "CONNECTION_TEST", payload)

	resp := client.recv(t)
	assert.JSONEq(t, string(payload), string(resp))

	require.Eventually(t, func() bool { return a.ConnectionCount() >= 1 }, time.Second, 10*time.Millisecond)
}

func TestAcceptorRejectsOverMaxConnections(t *testing.T) {
	store, err := storage.Open(t.TempDir(), "accounts_table")
	require.NoError(t, err)
	pool := dhpool.New(128, 4)
	d := dispatch.New()

	a := New(Config{Address: "127.0.0.1:0", MaxConnections: 1}, pool, d, store, nil)
	require.NoError(t, a.Start())
	defer a.Stop()

	first, err := net.DialTimeout("tcp", a.Addr().String(), time.Second)
	require.NoError(t, err)
	defer first.Close()
	// Drive the handshake so the acceptor's tracked-worker count is
	// stable before the second dial.
	newTestClient(t, first, dhpool.New(128, 2))
	require.Eventually(t, func() bool { return a.ConnectionCount() >= 1 }, time.Second, 10*time.Millisecond)

	second, err := net.DialTimeout("tcp", a.Addr().String(), time.Second)
	require.NoError(t, err)
	defer second.Close()

	buf := make([]byte, 1)
	second.SetReadDeadline(time.Now().Add(time.Second))
	_, err = second.Read(buf)
	assert.Error(t, err, "connection over the limit should be closed without any handshake bytes")
}

func TestAcceptorStopIsIdempotentAndJoinsWorkers(t *testing.T) {
	store, err := storage.Open(t.TempDir(), "accounts_table")
	require.NoError(t, err)
	pool := dhpool.New(128, 4)
	d := dispatch.New()

	a := New(Config{Address: "127.0.0.1:0"}, pool, d, store, nil)
	require.NoError(t, a.Start())

	conn, err := net.DialTimeout("tcp", a.Addr().String(), time.Second)
	require.NoError(t, err)
	defer conn.Close()
	newTestClient(t, conn, dhpool.New(128, 2))

	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())
}
