// SPDX-License-Identifier: LGPL-3.0-or-later

// Package storage implements the encrypted-at-rest key/value store: a
// single file per named storage whose entire plaintext (a map of
// entry name to arbitrary CBOR-encodable value) is sealed as one AEAD
// unit under a master key derived from a constant.
//
// Grounded on the original EncryptedStorageBackend: every operation is
// read-modify-write over the whole file. Unlike the original, writes
// to a given Store are serialized with a mutex — an explicit
// strengthening of the source's implicit single-writer assumption.
package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/mk-samoilov/shadowwire-server/crypto/aead"
	"github.com/mk-samoilov/shadowwire-server/internal/metrics"
)

// masterKeyConstant is the constant the master AEAD key is derived
// from, carried over verbatim from the original
// EncryptedStorageBackend.MASTER_KEY.
const masterKeyConstant = "master_key_v0.2.7"

// entryKeysName is the reserved top-level entry holding the per-entry
// key table.
const entryKeysName = "_stg_keys"

// Error is returned by Store operations on I/O failure. Corruption on
// read is never surfaced as an Error — it silently degrades to "no
// data" per the store's documented availability trade-off.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Store is a single sealed-blob file identified by name, persisted at
// <dir>/stg_<name>.stg.
type Store struct {
	path string
	key  aead.Key

	mu sync.Mutex
}

// Open returns a Store for the given name rooted at dir. The file is
// not created until the first write.
func Open(dir, name string) (*Store, error) {
	if name == "" {
		return nil, errors.New("storage: name cannot be empty")
	}
	key, err := aead.NewKey([]byte(masterKeyConstant))
	if err != nil {
		return nil, fmt.Errorf("storage: master key: %w", err)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, wrapErr("open", err)
	}
	return &Store{
		path: filepath.Join(dir, "stg_"+name+".stg"),
		key:  key,
	}, nil
}

// readAll loads and decrypts the full plaintext map, including the
// reserved "_stg_keys" entry. Any of "file missing", "file empty",
// "file too short", "decrypt failed", or "decode failed" is treated as
// no data, yielding an empty map and ok=false rather than an error —
// that's the documented corruption/missing-data trade-off.
func (s *Store) readAll() (map[string]cbor.RawMessage, bool) {
	start := time.Now()
	defer func() {
		metrics.StoreOperationDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())
	}()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		metrics.StoreOperations.WithLabelValues("load", "no_data").Inc()
		return map[string]cbor.RawMessage{}, false
	}
	if len(raw) < aead.MinSealedLen {
		metrics.StoreOperations.WithLabelValues("load", "no_data").Inc()
		return map[string]cbor.RawMessage{}, false
	}
	plaintext, err := s.key.Open(raw)
	if err != nil {
		metrics.StoreOperations.WithLabelValues("load", "corrupt").Inc()
		return map[string]cbor.RawMessage{}, false
	}
	// Any CBOR tag in the blob is refused: the store never writes one.
	dm, err := cbor.DecOptions{TagsMd: cbor.TagsForbidden}.DecMode()
	if err != nil {
		metrics.StoreOperations.WithLabelValues("load", "corrupt").Inc()
		return map[string]cbor.RawMessage{}, false
	}
	var m map[string]cbor.RawMessage
	if err := dm.Unmarshal(plaintext, &m); err != nil {
		metrics.StoreOperations.WithLabelValues("load", "corrupt").Inc()
		return map[string]cbor.RawMessage{}, false
	}
	if m == nil {
		m = map[string]cbor.RawMessage{}
	}
	metrics.StoreOperations.WithLabelValues("load", "success").Inc()
	return m, true
}

// writeAll serializes and seals m, atomically overwriting the file.
// On write the prior contents are deliberately discarded if they were
// corrupt — there is no partial recovery.
func (s *Store) writeAll(m map[string]cbor.RawMessage) error {
	start := time.Now()
	defer func() {
		metrics.StoreOperationDuration.WithLabelValues("save").Observe(time.Since(start).Seconds())
	}()

	plaintext, err := cbor.Marshal(m)
	if err != nil {
		metrics.StoreOperations.WithLabelValues("save", "failure").Inc()
		return wrapErr("marshal", err)
	}
	sealed, err := s.key.Seal(plaintext)
	if err != nil {
		metrics.StoreOperations.WithLabelValues("save", "failure").Inc()
		return wrapErr("seal", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		metrics.StoreOperations.WithLabelValues("save", "failure").Inc()
		return wrapErr("write", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		metrics.StoreOperations.WithLabelValues("save", "failure").Inc()
		return wrapErr("rename", err)
	}
	metrics.StoreOperations.WithLabelValues("save", "success").Inc()
	return nil
}

func decodeValue[T any](raw cbor.RawMessage) (T, error) {
	var v T
	err := cbor.Unmarshal(raw, &v)
	return v, err
}

func encodeValue(v any) (cbor.RawMessage, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return nil, err
	}
	return cbor.RawMessage(b), nil
}

// Load returns the full map of entries, excluding "_stg_keys", with
// each value decoded generically into an any. It returns
// (nil, false, nil) when there is no data to load.
func (s *Store) Load() (map[string]any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.readAll()
	if !ok {
		return nil, false, nil
	}
	out := make(map[string]any, len(m))
	for k, raw := range m {
		if k == entryKeysName {
			continue
		}
		var v any
		if err := cbor.Unmarshal(raw, &v); err != nil {
			return nil, false, wrapErr("load", err)
		}
		out[k] = v
	}
	return out, true, nil
}

// Save merges the given entries into the stored map (overlaying
// key-by-key, not replacing) and re-seals the file.
func (s *Store) Save(entries map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, _ := s.readAll()
	for k, v := range entries {
		raw, err := encodeValue(v)
		if err != nil {
			return wrapErr("save", err)
		}
		m[k] = raw
	}
	return s.writeAll(m)
}

// ReadEntry decodes a single top-level entry into a T. It reports
// ok=false if the entry (or the whole blob) is absent.
func ReadEntry[T any](s *Store, name string) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	m, ok := s.readAll()
	if !ok {
		return zero, false, nil
	}
	raw, ok := m[name]
	if !ok {
		return zero, false, nil
	}
	v, err := decodeValue[T](raw)
	if err != nil {
		return zero, false, wrapErr("read_entry", err)
	}
	return v, true, nil
}

// WriteEntry writes a single entry, read-modify-write over the whole
// file.
func (s *Store) WriteEntry(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, _ := s.readAll()
	raw, err := encodeValue(value)
	if err != nil {
		return wrapErr("write_entry", err)
	}
	m[name] = raw
	return s.writeAll(m)
}

// DeleteEntry removes an entry and its per-entry key, if any. Absent
// is reported as success (idempotent delete).
func (s *Store) DeleteEntry(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.readAll()
	if !ok {
		return nil
	}
	if _, present := m[name]; !present {
		return nil
	}
	delete(m, name)

	if rawKeys, present := m[entryKeysName]; present {
		keys, err := decodeValue[map[string][]byte](rawKeys)
		if err == nil {
			delete(keys, name)
			raw, err := encodeValue(keys)
			if err == nil {
				m[entryKeysName] = raw
			}
		}
	}
	return s.writeAll(m)
}

// ListEntries returns all top-level entry names except "_stg_keys".
func (s *Store) ListEntries() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.readAll()
	if !ok {
		return []string{}, nil
	}
	names := make([]string, 0, len(m))
	for k := range m {
		if k == entryKeysName {
			continue
		}
		names = append(names, k)
	}
	return names, nil
}

// EntryExists reports whether name is present as a top-level entry.
func (s *Store) EntryExists(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.readAll()
	if !ok {
		return false, nil
	}
	_, present := m[name]
	return present, nil
}

// GetOrCreateEntryKey returns the stable 32-byte key associated with
// name inside the "_stg_keys" table, generating and persisting one on
// first request.
func (s *Store) GetOrCreateEntryKey(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, _ := s.readAll()

	keys := map[string][]byte{}
	if rawKeys, present := m[entryKeysName]; present {
		decoded, err := decodeValue[map[string][]byte](rawKeys)
		if err == nil {
			keys = decoded
		}
	}

	if existing, ok := keys[name]; ok {
		return existing, nil
	}

	newKey, err := generateEntryKey(name)
	if err != nil {
		return nil, wrapErr("get_or_create_entry_key", err)
	}
	keys[name] = newKey

	raw, err := encodeValue(keys)
	if err != nil {
		return nil, wrapErr("get_or_create_entry_key", err)
	}
	m[entryKeysName] = raw

	if err := s.writeAll(m); err != nil {
		return nil, err
	}
	return newKey, nil
}

func generateEntryKey(name string) ([]byte, error) {
	randBytes := make([]byte, 32)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, err
	}
	combined := name + "_" + hex.EncodeToString(randBytes)
	sum := sha256.Sum256([]byte(combined))
	return sum[:], nil
}
