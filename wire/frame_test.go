// SPDX-License-Identifier: LGPL-3.0-or-later

package wire

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadExactCleanEOF(t *testing.T) {
	r := bytes.NewReader(nil)
	got, err := ReadExact(r, 4)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReadExactShortReadIsFatal(t *testing.T) {
	r := bytes.NewReader([]byte{1, 2})
	_, err := ReadExact(r, 4)
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestReadExactZeroLength(t *testing.T) {
	r := bytes.NewReader(nil)
	got, err := ReadExact(r, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{}, got)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	frames := []*Frame{
		{TransCode: []byte("LOGIN"), Payload: []byte("one")},
		{TransCode: []byte("CONNECTION_TEST"), Payload: []byte{}},
		{TransCode: []byte("SEND_MESSAGE"), Payload: bytes.Repeat([]byte{0xAB}, 300)},
	}
	for _, f := range frames {
		require.NoError(t, WriteFrame(&buf, f))
	}

	for _, want := range frames {
		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want.TransCode, got.TransCode)
		assert.Equal(t, want.Payload, got.Payload)
	}
}

func TestReadFrameCleanCloseBeforeFirstField(t *testing.T) {
	r := bytes.NewReader(nil)
	f, err := ReadFrame(r)
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestReadFrameFatalMidFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteValue(&buf, []byte{1, 2, 3, 4}))
	truncated := buf.Bytes()[:6]

	_, err := ReadFrame(bytes.NewReader(truncated))
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestValueRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	values := [][]byte{{}, []byte("p"), bytes.Repeat([]byte{0x01}, 64)}
	for _, v := range values {
		require.NoError(t, WriteValue(&buf, v))
	}
	for _, want := range values {
		got, err := ReadValue(&buf)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReadValueCleanCloseBeforeLength(t *testing.T) {
	got, err := ReadValue(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Nil(t, got)
}

var _ io.Reader = (*bytes.Reader)(nil)
