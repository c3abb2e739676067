// SPDX-License-Identifier: LGPL-3.0-or-later

package handlers

import (
	"strings"
	"time"

	"github.com/mk-samoilov/shadowwire-server/crypto/aead"
	"github.com/mk-samoilov/shadowwire-server/dispatch"
	"github.com/mk-samoilov/shadowwire-server/storage"
)

// Message is one row of the messages table. Payload is sealed under
// the store's "messages" per-entry key before it is ever written —
// the at-rest re-encryption spec.md names, unified with the sealed
// store's own key custody instead of a separate key file.
type Message struct {
	ID        int    `cbor:"message_id"`
	ChatID    int    `cbor:"chat_id"`
	Sender    string `cbor:"sender"`
	Payload   []byte `cbor:"payload_bytes"`
	CreatedAt string `cbor:"created_at"`
}

// Messages returns the SEND_MESSAGE, READ_MESSAGES, EDIT_MESSAGE, and
// DELETE_MESSAGE handler set, grounded on app_functions.py's
// send_message/read_messages/edit_message/delete_message.
func Messages() map[string]dispatch.HandlerFunc {
	return map[string]dispatch.HandlerFunc{
		"SEND_MESSAGE":   sendMessage,
		"READ_MESSAGES":  readMessages,
		"EDIT_MESSAGE":   editMessage,
		"DELETE_MESSAGE": deleteMessage,
	}
}

func messageKey(store *storage.Store) (aead.Key, error) {
	raw, err := store.GetOrCreateEntryKey(messageKeyName)
	if err != nil {
		return aead.Key{}, err
	}
	return aead.NewKey(raw)
}

func sendMessage(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "SEND_MESSAGE_TOKEN:RESPONSE"
	token, _ := args["token"].(string)
	chatID := intArg(args["chat_id"])
	payload, _ := args["payload"].(string)

	username := validateToken(store, token)
	if username == "" {
		return reply("invalid_token", nil, responseCode)
	}
	accounts := loadAccounts(store)
	if _, exists := accounts[username]; !exists {
		return reply("account_not_found", nil, responseCode)
	}

	chats := loadChats(store)
	chat, exists := chats[chatID]
	if !exists || !chat.hasMember(username) {
		return reply("invalid_chat_id", nil, responseCode)
	}
	if strings.TrimSpace(payload) == "" {
		return reply("invalid_chat_id", nil, responseCode)
	}

	key, err := messageKey(store)
	if err != nil {
		return reply("message_encryption_filed", nil, responseCode)
	}
	sealed, err := key.Seal([]byte(payload))
	if err != nil {
		return reply("message_encryption_filed", nil, responseCode)
	}

	messages := loadMessages(store)
	id := nextMessageID(messages)
	messages[id] = Message{
		ID:        id,
		ChatID:    chatID,
		Sender:    username,
		Payload:   sealed,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := saveMessages(store, messages); err != nil {
		return reply("server_other_error", nil, responseCode)
	}
	return reply("ok", nil, responseCode)
}

func readMessages(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "READ_MESSAGES_TOKEN:RESPONSE"
	token, _ := args["token"].(string)

	username := validateToken(store, token)
	if username == "" {
		return reply("invalid_token", nil, responseCode)
	}
	accounts := loadAccounts(store)
	if _, exists := accounts[username]; !exists {
		return reply("account_not_found", nil, responseCode)
	}

	key, err := messageKey(store)
	if err != nil {
		return reply("message_decryption_filed", nil, responseCode)
	}

	chats := loadChats(store)
	memberChats := map[int]Chat{}
	for id, chat := range chats {
		if chat.hasMember(username) {
			memberChats[id] = chat
		}
	}

	messages := loadMessages(store)
	out := make([]map[string]any, 0)
	for _, msg := range messages {
		chat, inChat := memberChats[msg.ChatID]
		if !inChat {
			continue
		}
		plaintext, err := key.Open(msg.Payload)
		if err != nil {
			continue
		}
		out = append(out, map[string]any{
			"message_id": msg.ID,
			"payload":    string(plaintext),
			"sender":     msg.Sender,
			"chat_id":    msg.ChatID,
			"chat_name":  chat.Name,
			"created_at": msg.CreatedAt,
		})
	}
	return reply("ok", out, responseCode)
}

func editMessage(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "EDIT_MESSAGE:RESPONSE"
	token, _ := args["token"].(string)
	messageID := intArg(args["m_id"])
	newPayload, _ := args["new_payload"].(string)

	username := validateToken(store, token)
	if username == "" {
		return reply("invalid_token", nil, responseCode)
	}
	accounts := loadAccounts(store)
	if _, exists := accounts[username]; !exists {
		return reply("account_not_found", nil, responseCode)
	}

	messages := loadMessages(store)
	msg, exists := messages[messageID]
	if !exists || msg.Sender != username {
		return reply("message_not_found_or_not_owner", nil, responseCode)
	}

	key, err := messageKey(store)
	if err != nil {
		return reply("message_encryption_filed", nil, responseCode)
	}
	sealed, err := key.Seal([]byte(newPayload))
	if err != nil {
		return reply("message_encryption_filed", nil, responseCode)
	}

	msg.Payload = sealed
	messages[messageID] = msg
	if err := saveMessages(store, messages); err != nil {
		return reply("server_other_error", nil, responseCode)
	}
	return reply("ok", nil, responseCode)
}

func deleteMessage(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "DELETE_MESSAGE:RESPONSE"
	token, _ := args["token"].(string)
	messageID := intArg(args["m_id"])

	username := validateToken(store, token)
	if username == "" {
		return reply("invalid_token", nil, responseCode)
	}
	accounts := loadAccounts(store)
	if _, exists := accounts[username]; !exists {
		return reply("account_not_found", nil, responseCode)
	}

	messages := loadMessages(store)
	msg, exists := messages[messageID]
	if !exists || msg.Sender != username {
		return reply("message_not_found_or_not_owner", nil, responseCode)
	}

	delete(messages, messageID)
	if err := saveMessages(store, messages); err != nil {
		return reply("server_other_error", nil, responseCode)
	}
	return reply("ok", nil, responseCode)
}

// deleteMessagesByChatID removes every message belonging to chatID,
// called when a chat is deleted.
func deleteMessagesByChatID(store *storage.Store, chatID int) {
	messages := loadMessages(store)
	changed := false
	for id, msg := range messages {
		if msg.ChatID == chatID {
			delete(messages, id)
			changed = true
		}
	}
	if changed {
		_ = saveMessages(store, messages)
	}
}
