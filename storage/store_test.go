// SPDX-License-Identifier: LGPL-3.0-or-later

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndReadEntry(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "accounts_table")
	require.NoError(t, err)

	require.NoError(t, s.WriteEntry("alice", map[string]any{"username": "alice", "id": uint64(1)}))

	got, ok, err := ReadEntry[map[string]any](s, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", got["username"])
}

func TestReadEntryMissingIsNotError(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "accounts_table")
	require.NoError(t, err)

	_, ok, err := ReadEntry[map[string]any](s, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveMergesRatherThanReplaces(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "accounts_table")
	require.NoError(t, err)

	require.NoError(t, s.Save(map[string]any{"alice": "a", "bob": "b"}))
	require.NoError(t, s.Save(map[string]any{"carol": "c"}))

	all, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, all, 3)
}

func TestDeleteEntryIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "accounts_table")
	require.NoError(t, err)

	require.NoError(t, s.WriteEntry("alice", "data"))
	require.NoError(t, s.DeleteEntry("alice"))
	require.NoError(t, s.DeleteEntry("alice"))

	exists, err := s.EntryExists("alice")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListEntriesExcludesKeyTable(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "accounts_table")
	require.NoError(t, err)

	require.NoError(t, s.WriteEntry("alice", "x"))
	_, err = s.GetOrCreateEntryKey("messages")
	require.NoError(t, err)

	names, err := s.ListEntries()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice"}, names)
}

func TestGetOrCreateEntryKeyIsStable(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "accounts_table")
	require.NoError(t, err)

	k1, err := s.GetOrCreateEntryKey("messages")
	require.NoError(t, err)
	k2, err := s.GetOrCreateEntryKey("messages")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 32)
}

func TestGetOrCreateEntryKeySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s1, err := Open(dir, "accounts_table")
	require.NoError(t, err)
	k1, err := s1.GetOrCreateEntryKey("messages")
	require.NoError(t, err)

	s2, err := Open(dir, "accounts_table")
	require.NoError(t, err)
	k2, err := s2.GetOrCreateEntryKey("messages")
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
}

func TestLoadOnMissingFileReturnsNotOK(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "accounts_table")
	require.NoError(t, err)

	_, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenRejectsEmptyName(t *testing.T) {
	dir := t.TempDir()
	_, err := Open(dir, "")
	assert.Error(t, err)
}
