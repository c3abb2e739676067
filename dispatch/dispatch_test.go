// SPDX-License-Identifier: LGPL-3.0-or-later

package dispatch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mk-samoilov/shadowwire-server/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(t.TempDir(), "accounts_table")
	require.NoError(t, err)
	return s
}

func TestDispatchConnectionTestEchoesPayload(t *testing.T) {
	d := New()
	store := newTestStore(t)

	payload := []byte(`{"request_uuid":"u1","hello":"world"}`)
	resp, code := d.Dispatch(store, "CONNECTION_TEST", payload)

	assert.Equal(t, "CONNECTION_TEST:RESPONSE", code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(resp, &got))
	assert.Equal(t, "world", got["hello"])
	assert.Equal(t, "u1", got["request_uuid"])
}

func TestDispatchUnknownCodeIsInvalidTransactionCode(t *testing.T) {
	d := New()
	store := newTestStore(t)

	resp, code := d.Dispatch(store, "NO_SUCH", []byte(`{}`))
	assert.Equal(t, "ERROR:RESPONSE", code)

	var envelope [2]json.RawMessage
	require.NoError(t, json.Unmarshal(resp, &envelope))
	var result Result
	require.NoError(t, json.Unmarshal(envelope[0], &result))
	assert.Equal(t, "invalid_transaction_code", result[0])
}

func TestDispatchRoutesToRegisteredHandlerCaseInsensitively(t *testing.T) {
	d := New()
	store := newTestStore(t)

	called := false
	d.Register("PING", func(_ *storage.Store, args map[string]any) ([]byte, string) {
		called = true
		assert.Equal(t, "v", args["k"])
		b, _ := EncodeEnvelope(Code("ok"), nil)
		return b, "PING:RESPONSE"
	})

	_, code := d.Dispatch(store, "ping", []byte(`{"k":"v"}`))
	assert.True(t, called)
	assert.Equal(t, "PING:RESPONSE", code)
}

func TestDispatchThreadsRequestUUIDIntoHandlerResponse(t *testing.T) {
	d := New()
	store := newTestStore(t)

	d.Register("WHOAMI", func(_ *storage.Store, _ map[string]any) ([]byte, string) {
		b, _ := EncodeEnvelope(Code("ok"), map[string]any{"username": "alice"})
		return b, "WHOAMI:RESPONSE"
	})

	resp, _ := d.Dispatch(store, "WHOAMI", []byte(`{"request_uuid":"abc"}`))

	var envelope [2]json.RawMessage
	require.NoError(t, json.Unmarshal(resp, &envelope))
	var data map[string]any
	require.NoError(t, json.Unmarshal(envelope[1], &data))
	assert.Equal(t, "abc", data["request_uuid"])
	assert.Equal(t, "alice", data["username"])
}

func TestDispatchNoRequestUUIDLeavesDataAlone(t *testing.T) {
	d := New()
	store := newTestStore(t)

	d.Register("WHOAMI", func(_ *storage.Store, _ map[string]any) ([]byte, string) {
		b, _ := EncodeEnvelope(Code("ok"), nil)
		return b, "WHOAMI:RESPONSE"
	})

	resp, _ := d.Dispatch(store, "WHOAMI", []byte(`{}`))

	var envelope [2]json.RawMessage
	require.NoError(t, json.Unmarshal(resp, &envelope))
	assert.Equal(t, "null", string(envelope[1]))
}
