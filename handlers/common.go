// SPDX-License-Identifier: LGPL-3.0-or-later

// Package handlers implements the account, token, chat, and message
// business logic that spec.md names only by contract shape. It
// supplements the distilled specification with the original service's
// full handler set.
package handlers

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"

	"github.com/mk-samoilov/shadowwire-server/dispatch"
	"github.com/mk-samoilov/shadowwire-server/storage"
)

// Table entry names inside the shared sealed store. accounts_table
// resolves the original's users_table/accounts_table split in favor
// of the name its own schema declaration used.
const (
	accountsTableEntry = "accounts_table"
	tokensTableEntry   = "tokens_table"
	chatsTableEntry    = "chats_table"
	messagesTableEntry = "messages_table"

	// messageKeyName is the per-entry key used to re-encrypt message
	// payloads before they are written to the messages table.
	messageKeyName = "messages"
)

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

func newToken() string {
	return uuid.NewString()
}

// reply builds a response envelope for a named exit code, tagging it
// with the response code used for this transaction family.
func reply(exitCode string, data any, responseCode string) ([]byte, string) {
	body, err := dispatch.EncodeEnvelope(dispatch.Code(exitCode), data)
	if err != nil {
		body, _ = dispatch.EncodeEnvelope(dispatch.Code("server_other_error"), nil)
	}
	return body, responseCode
}

func loadAccounts(store *storage.Store) map[string]Account {
	t, ok, err := storage.ReadEntry[map[string]Account](store, accountsTableEntry)
	if err != nil || !ok || t == nil {
		return map[string]Account{}
	}
	return t
}

func saveAccounts(store *storage.Store, accounts map[string]Account) error {
	return store.WriteEntry(accountsTableEntry, accounts)
}

func loadTokens(store *storage.Store) map[string]Token {
	t, ok, err := storage.ReadEntry[map[string]Token](store, tokensTableEntry)
	if err != nil || !ok || t == nil {
		return map[string]Token{}
	}
	return t
}

func saveTokens(store *storage.Store, tokens map[string]Token) error {
	return store.WriteEntry(tokensTableEntry, tokens)
}

func loadChats(store *storage.Store) map[int]Chat {
	t, ok, err := storage.ReadEntry[map[int]Chat](store, chatsTableEntry)
	if err != nil || !ok || t == nil {
		return map[int]Chat{}
	}
	return t
}

func saveChats(store *storage.Store, chats map[int]Chat) error {
	return store.WriteEntry(chatsTableEntry, chats)
}

func loadMessages(store *storage.Store) map[int]Message {
	t, ok, err := storage.ReadEntry[map[int]Message](store, messagesTableEntry)
	if err != nil || !ok || t == nil {
		return map[int]Message{}
	}
	return t
}

func saveMessages(store *storage.Store, messages map[int]Message) error {
	return store.WriteEntry(messagesTableEntry, messages)
}

// nextChatID (and nextMessageID below) returns one past the highest
// key currently in use, mirroring
// the original's _get_record_id convention (0 for an empty table).
func nextChatID(chats map[int]Chat) int {
	max := -1
	for id := range chats {
		if id > max {
			max = id
		}
	}
	return max + 1
}

func nextMessageID(messages map[int]Message) int {
	max := -1
	for id := range messages {
		if id > max {
			max = id
		}
	}
	return max + 1
}

// validateToken resolves a token to its owning username, or "" if the
// token is unknown.
func validateToken(store *storage.Store, token string) string {
	tokens := loadTokens(store)
	t, ok := tokens[token]
	if !ok {
		return ""
	}
	return t.Username
}
