// SPDX-License-Identifier: LGPL-3.0-or-later

package handshake

import (
	"bytes"
	"io"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mk-samoilov/shadowwire-server/crypto/aead"
	"github.com/mk-samoilov/shadowwire-server/crypto/dhpool"
	"github.com/mk-samoilov/shadowwire-server/wire"
)

// pipe implements io.ReadWriter over two independent byte buffers, one
// per direction, so Run's writes and a simulated client's reads don't
// collide.
type pipe struct {
	toClient *bytes.Buffer
	toServer *bytes.Buffer
}

func (p *pipe) Write(b []byte) (int, error) { return p.toClient.Write(b) }
func (p *pipe) Read(b []byte) (int, error)  { return p.toServer.Read(b) }

func TestRunCompletesAndDerivesMatchingKey(t *testing.T) {
	pool := dhpool.New(128, 4)

	p := &pipe{toClient: &bytes.Buffer{}, toServer: &bytes.Buffer{}}

	clientPriv, err := pool.Take()
	require.NoError(t, err)
	require.NoError(t, wire.WriteValue(p.toServer, clientPriv.PublicBytes()))

	result, err := Run(p, pool)
	require.NoError(t, err)

	serverP, err := wire.ReadValue(p.toClient)
	require.NoError(t, err)
	serverG, err := wire.ReadValue(p.toClient)
	require.NoError(t, err)
	serverPub, err := wire.ReadValue(p.toClient)
	require.NoError(t, err)

	assert.NotEmpty(t, serverP)
	assert.Equal(t, big.NewInt(2).Bytes(), serverG)

	clientPriv.P = new(big.Int).SetBytes(serverP)
	shared, err := dhpool.Derive(clientPriv, new(big.Int).SetBytes(serverPub))
	require.NoError(t, err)

	sealed, err := result.SessionKey.Seal([]byte("ping"))
	require.NoError(t, err)

	clientKey, err := aead.NewKey(shared)
	require.NoError(t, err)
	opened, err := clientKey.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), opened)
}

func TestRunReturnsErrPeerClosedOnEarlyDisconnect(t *testing.T) {
	pool := dhpool.New(128, 2)
	p := &pipe{toClient: &bytes.Buffer{}, toServer: &bytes.Buffer{}}

	_, err := Run(p, pool)
	assert.ErrorIs(t, err, ErrPeerClosed)
}

func TestRunFatalOnShortClientPublic(t *testing.T) {
	pool := dhpool.New(128, 2)
	p := &pipe{toClient: &bytes.Buffer{}, toServer: &bytes.Buffer{}}

	// A length prefix promising 8 bytes but only 2 arrive.
	lenBuf := []byte{0, 0, 0, 8, 1, 2}
	p.toServer.Write(lenBuf)

	_, err := Run(p, pool)
	require.Error(t, err)
	assert.ErrorIs(t, err, wire.ErrShortRead)
}

var _ io.ReadWriter = (*pipe)(nil)
