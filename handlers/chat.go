// SPDX-License-Identifier: LGPL-3.0-or-later

package handlers

import (
	"github.com/mk-samoilov/shadowwire-server/dispatch"
	"github.com/mk-samoilov/shadowwire-server/storage"
)

// Chat is one row of the chats table.
type Chat struct {
	ID           int      `cbor:"chat_id"`
	Owner        string   `cbor:"owner"`
	Participants []string `cbor:"participants"`
	Name         string   `cbor:"name"`
}

func (c Chat) hasMember(username string) bool {
	if c.Owner == username {
		return true
	}
	for _, p := range c.Participants {
		if p == username {
			return true
		}
	}
	return false
}

func (c Chat) asMap() map[string]any {
	return map[string]any{
		"chat_id":      c.ID,
		"owner":        c.Owner,
		"participants": c.Participants,
		"name":         c.Name,
		"is_owner":     false,
	}
}

// Chats returns the CREATE_CHAT, DELETE_CHAT, ADD_PARTICIPANT_TO_CHAT,
// REMOVE_PARTICIPANT_FROM_CHAT, GET_CHAT_BY_ID, GET_USER_CHATS, and
// CHANGE_CHAT_NAME handler set, grounded on app_functions.py's
// functions of the same name.
func Chats() map[string]dispatch.HandlerFunc {
	return map[string]dispatch.HandlerFunc{
		"CREATE_CHAT":                  createChat,
		"DELETE_CHAT":                  deleteChat,
		"ADD_PARTICIPANT_TO_CHAT":      addParticipantToChat,
		"REMOVE_PARTICIPANT_FROM_CHAT": removeParticipantFromChat,
		"GET_CHAT_BY_ID":               getChatByID,
		"GET_USER_CHATS":               getUserChats,
		"CHANGE_CHAT_NAME":             changeChatName,
	}
}

func createChat(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "CREATE_CHAT:RESPONSE"
	token, _ := args["token"].(string)
	name, _ := args["name"].(string)
	participants := stringSlice(args["participants"])

	username := validateToken(store, token)
	if username == "" {
		return reply("invalid_token", nil, responseCode)
	}
	accounts := loadAccounts(store)
	if _, exists := accounts[username]; !exists {
		return reply("account_not_found", nil, responseCode)
	}
	for _, p := range participants {
		if _, exists := accounts[p]; !exists {
			return reply("invalid_participant", nil, responseCode)
		}
	}

	chats := loadChats(store)
	id := nextChatID(chats)
	chats[id] = Chat{ID: id, Owner: username, Participants: participants, Name: name}
	if err := saveChats(store, chats); err != nil {
		return reply("server_other_error", nil, responseCode)
	}
	return reply("ok", map[string]any{"chat_id": id}, responseCode)
}

func deleteChat(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "DELETE_CHAT:RESPONSE"
	token, _ := args["token"].(string)
	chatID := intArg(args["chat_id"])

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
		return reply("chat_not_found", nil, responseCode)
	}
	if chat.Owner != username {
		return reply("not_chat_owner", nil, responseCode)
	}

	delete(chats, chatID)
	if err := saveChats(store, chats); err != nil {
		return reply("server_other_error", nil, responseCode)
	}
	deleteMessagesByChatID(store, chatID)
	return reply("ok", nil, responseCode)
}

func addParticipantToChat(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "ADD_PARTICIPANT_TO_CHAT:RESPONSE"
	token, _ := args["token"].(string)
	chatID := intArg(args["chat_id"])
	toAdd, _ := args["username_to_add"].(string)

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
		return reply("chat_not_found", nil, responseCode)
	}
	if chat.Owner != username {
		return reply("not_chat_owner", nil, responseCode)
	}
	if _, exists := accounts[toAdd]; !exists {
		return reply("invalid_participant", nil, responseCode)
	}

	chat.Participants = append(chat.Participants, toAdd)
	chats[chatID] = chat
	if err := saveChats(store, chats); err != nil {
		return reply("server_other_error", nil, responseCode)
	}
	return reply("ok", nil, responseCode)
}

func removeParticipantFromChat(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "REMOVE_PARTICIPANT_FROM_CHAT:RESPONSE"
	token, _ := args["token"].(string)
	chatID := intArg(args["chat_id"])
	toRemove, _ := args["username_to_remove"].(string)

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
		return reply("chat_not_found", nil, responseCode)
	}
	if chat.Owner != username {
		return reply("not_chat_owner", nil, responseCode)
	}
	if _, exists := accounts[toRemove]; !exists {
		return reply("invalid_participant", nil, responseCode)
	}

	filtered := chat.Participants[:0]
	for _, p := range chat.Participants {
		if p != toRemove {
			filtered = append(filtered, p)
		}
	}
	chat.Participants = filtered
	chats[chatID] = chat
	if err := saveChats(store, chats); err != nil {
		return reply("server_other_error", nil, responseCode)
	}
	return reply("ok", nil, responseCode)
}

func getChatByID(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "GET_CHAT_BY_ID:RESPONSE"
	token, _ := args["token"].(string)
	chatID := intArg(args["chat_id"])

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
		return reply("chat_not_found", nil, responseCode)
	}

	view := chat.asMap()
	view["is_owner"] = chat.Owner == username
	return reply("ok", view, responseCode)
}

func getUserChats(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "GET_USER_CHATS:RESPONSE"
	token, _ := args["token"].(string)

	username := validateToken(store, token)
	if username == "" {
		return reply("invalid_token", nil, responseCode)
	}
	accounts := loadAccounts(store)
	if _, exists := accounts[username]; !exists {
		return reply("account_not_found", nil, responseCode)
	}

	chats := loadChats(store)
	userChats := make([]map[string]any, 0)
	for _, chat := range chats {
		if chat.hasMember(username) {
			view := chat.asMap()
			view["is_owner"] = chat.Owner == username
			userChats = append(userChats, view)
		}
	}
	return reply("ok", map[string]any{"chats": userChats}, responseCode)
}

func changeChatName(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "CHANGE_CHAT_NAME:RESPONSE"
	token, _ := args["token"].(string)
	chatID := intArg(args["chat_id"])
	newName, _ := args["new_name"].(string)

	username := validateToken(store, token)
	if username == "" {
		return reply("invalid_token", nil, responseCode)
	}
	accounts := loadAccounts(store)
	if _, exists := accounts[username]; !exists {
		return reply("account_not_found", nil, responseCode)
	}
	if newName == "" {
		return reply("server_other_error", nil, responseCode)
	}

	chats := loadChats(store)
	chat, exists := chats[chatID]
	if !exists || !chat.hasMember(username) {
		return reply("chat_not_found", nil, responseCode)
	}

	chat.Name = newName
	chats[chatID] = chat
	if err := saveChats(store, chats); err != nil {
		return reply("server_other_error", nil, responseCode)
	}
	return reply("ok", nil, responseCode)
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intArg(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return -1
	}
}
