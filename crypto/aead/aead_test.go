// SPDX-License-Identifier: LGPL-3.0-or-later

package aead

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	key, err := NewKey([]byte("any length key material works"))
	require.NoError(t, err)

	msgs := [][]byte{
		[]byte(""),
		[]byte("hello world"),
		make([]byte, 4096),
	}

	for _, m := range msgs {
		sealed, err := key.Seal(m)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(sealed), MinSealedLen)

		got, err := key.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	key, err := NewKey([]byte("k"))
	require.NoError(t, err)

	sealed, err := key.Seal([]byte("payload"))
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xFF

	_, err = key.Open(tampered)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestOpenRejectsShortInput(t *testing.T) {
	key, err := NewKey([]byte("k"))
	require.NoError(t, err)

	_, err = key.Open(make([]byte, MinSealedLen-1))
	assert.ErrorIs(t, err, ErrAuth)
}

func TestDifferentKeysProduceDifferentSeals(t *testing.T) {
	k1, err := NewKey([]byte("a"))
	require.NoError(t, err)
	k2, err := NewKey([]byte("b"))
	require.NoError(t, err)

	sealed, err := k1.Seal([]byte("payload"))
	require.NoError(t, err)

	_, err = k2.Open(sealed)
	assert.ErrorIs(t, err, ErrAuth)
}
