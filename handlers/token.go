// SPDX-License-Identifier: LGPL-3.0-or-later

package handlers

import (
	"github.com/mk-samoilov/shadowwire-server/dispatch"
	"github.com/mk-samoilov/shadowwire-server/storage"
)

// Token is one row of the tokens table: a session token issued by
// LOGIN, owned by exactly one username.
type Token struct {
	ID        string `cbor:"id"`
	Username  string `cbor:"username"`
	CreatedAt string `cbor:"created_at"`
}

// Tokens returns the VERIFY_TOKEN, DELETE_TOKEN, and GET_USER_TOKENS
// handler set, grounded on app_functions.py's verify_token/
// delete_token/get_user_tokens.
func Tokens() map[string]dispatch.HandlerFunc {
	return map[string]dispatch.HandlerFunc{
		"VERIFY_TOKEN":    verifyToken,
		"DELETE_TOKEN":    deleteToken,
		"GET_USER_TOKENS": getUserTokens,
	}
}

func verifyToken(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "VERIFY_TOKEN:RESPONSE"
	token, _ := args["token"].(string)

	username := validateToken(store, token)
	if username == "" {
		return reply("invalid_token", nil, responseCode)
	}
	accounts := loadAccounts(store)
	if _, exists := accounts[username]; !exists {
		return reply("account_not_found", nil, responseCode)
	}
	return reply("ok", map[string]any{"username": username}, responseCode)
}

func deleteToken(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "DELETE_TOKEN:RESPONSE"
	token, _ := args["token"].(string)
	targetTokenID, _ := args["r_token_id"].(string)

	username := validateToken(store, token)
	if username == "" {
		return reply("invalid_token", nil, responseCode)
	}
	accounts := loadAccounts(store)
	if _, exists := accounts[username]; !exists {
		return reply("account_not_found", nil, responseCode)
	}

	tokens := loadTokens(store)
	target, exists := tokens[targetTokenID]
	if !exists || target.Username != username {
		return reply("token_not_owner", nil, responseCode)
	}

	delete(tokens, targetTokenID)
	if err := saveTokens(store, tokens); err != nil {
		return reply("server_other_error", nil, responseCode)
	}
	return reply("ok", nil, responseCode)
}

func getUserTokens(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "GET_USER_TOKENS:RESPONSE"
	token, _ := args["token"].(string)

	username := validateToken(store, token)
	if username == "" {
		return reply("invalid_token", nil, responseCode)
	}
	accounts := loadAccounts(store)
	if _, exists := accounts[username]; !exists {
		return reply("account_not_found", nil, responseCode)
	}

	tokens := loadTokens(store)
	owned := make([]string, 0)
	for id, tok := range tokens {
		if tok.Username == username {
			owned = append(owned, id)
		}
	}
	return reply("ok", map[string]any{"tokens": owned}, responseCode)
}
