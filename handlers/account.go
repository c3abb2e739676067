// SPDX-License-Identifier: LGPL-3.0-or-later

package handlers

import (
	"time"

	"github.com/mk-samoilov/shadowwire-server/dispatch"
	"github.com/mk-samoilov/shadowwire-server/storage"
)

// Account is one row of the accounts table.
type Account struct {
	Username     string `cbor:"username"`
	PasswordHash string `cbor:"password_hash"`
	CreatedAt    string `cbor:"created_at"`
}

// Accounts returns the REG_ACCOUNT, LOGIN, CHANGE_USERNAME, and
// CHANGE_PASSWORD handler set, grounded on
// original_source/serv/client_request_handler/app_functions.py's
// reg_account/login/change_username/change_password.
func Accounts() map[string]dispatch.HandlerFunc {
	return map[string]dispatch.HandlerFunc{
		"REG_ACCOUNT":     regAccount,
		"LOGIN":           login,
		"CHANGE_USERNAME": changeUsername,
		"CHANGE_PASSWORD": changePassword,
	}
}

func regAccount(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "REG_ACCOUNT:RESPONSE"
	username, _ := args["username"].(string)
	password, _ := args["password"].(string)

	accounts := loadAccounts(store)
	if _, exists := accounts[username]; exists {
		return reply("username_already_used", nil, responseCode)
	}

	accounts[username] = Account{
		Username:     username,
		PasswordHash: hashPassword(password),
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if err := saveAccounts(store, accounts); err != nil {
		return reply("server_other_error", nil, responseCode)
	}
	return reply("ok", nil, responseCode)
}

func login(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "LOGIN:RESPONSE"
	username, _ := args["username"].(string)
	password, _ := args["password"].(string)

	accounts := loadAccounts(store)
	account, exists := accounts[username]
	if !exists {
		return reply("account_not_found", nil, responseCode)
	}
	if account.PasswordHash != hashPassword(password) {
		return reply("invalid_password", nil, responseCode)
	}

	token := newToken()
	tokens := loadTokens(store)
	tokens[token] = Token{ID: token, Username: username, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
	if err := saveTokens(store, tokens); err != nil {
		return reply("server_other_error", nil, responseCode)
	}
	return reply("ok", map[string]any{"token": token}, responseCode)
}

func changeUsername(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "CHANGE_NICKNAME:RESPONSE"
	token, _ := args["token"].(string)
	newUsername, _ := args["new_username"].(string)

	username := validateToken(store, token)
	if username == "" {
		return reply("invalid_token", nil, responseCode)
	}

	accounts := loadAccounts(store)
	account, exists := accounts[username]
	if !exists {
		return reply("account_not_found", nil, responseCode)
	}
	if _, taken := accounts[newUsername]; taken {
		return reply("username_already_used", nil, responseCode)
	}

	delete(accounts, username)
	account.Username = newUsername
	accounts[newUsername] = account
	if err := saveAccounts(store, accounts); err != nil {
		return reply("server_other_error", nil, responseCode)
	}

	tokens := loadTokens(store)
	for id, tok := range tokens {
		if tok.Username == username {
			tok.Username = newUsername
			tokens[id] = tok
		}
	}
	_ = saveTokens(store, tokens)

	return reply("ok", nil, responseCode)
}

func changePassword(store *storage.Store, args map[string]any) ([]byte, string) {
	const responseCode = "CHANGE_PASSWORD:RESPONSE"
	token, _ := args["token"].(string)
	oldPassword, _ := args["old_password"].(string)
	newPassword, _ := args["new_password"].(string)

	username := validateToken(store, token)
	if username == "" {
		return reply("invalid_token", nil, responseCode)
	}

	accounts := loadAccounts(store)
	account, exists := accounts[username]
	if !exists {
		return reply("account_not_found", nil, responseCode)
	}
	if account.PasswordHash != hashPassword(oldPassword) {
		return reply("invalid_password", nil, responseCode)
	}

	account.PasswordHash = hashPassword(newPassword)
	accounts[username] = account
	if err := saveAccounts(store, accounts); err != nil {
		return reply("server_other_error", nil, responseCode)
	}
	return reply("ok", nil, responseCode)
}
