// SPDX-License-Identifier: LGPL-3.0-or-later

package dispatch

// Result is the `(code_string, human_string)` pair every response
// carries, reproduced as a fixed fifteen-entry table. Handlers never
// construct a Result directly; they look one up by name via Code.
type Result [2]string

// The fifteen named exit codes, verbatim from the original handler
// set — including the "filed" misspelling in the two message
// encryption/decryption codes, which is part of the wire vocabulary
// and not a typo to fix.
var codeTable = map[string]Result{
	"ok":                             {"ok", "ok"},
	"invalid_token":                  {"invalid_token", "invalid or expired token"},
	"account_not_found":              {"account_not_found", "account not found"},
	"username_already_used":          {"username_already_used", "username already in use"},
	"invalid_password":               {"invalid_password", "invalid password"},
	"chat_not_found":                 {"chat_not_found", "chat not found"},
	"not_chat_owner":                 {"not_chat_owner", "not the chat owner"},
	"invalid_participant":            {"invalid_participant", "invalid participant"},
	"message_not_found_or_not_owner": {"message_not_found_or_not_owner", "message not found or not owned by caller"},
	"invalid_chat_id":                {"invalid_chat_id", "invalid chat id"},
	"message_encryption_filed":       {"message_encryption_filed", "message encryption failed"},
	"message_decryption_filed":       {"message_decryption_filed", "message decryption failed"},
	"token_not_owner":                {"token_not_owner", "token not owned by caller"},
	"invalid_transaction_code":       {"invalid_transaction_code", "invalid transaction code"},
	"server_other_error":             {"server_other_error", "internal server error"},
}

// Code looks up a named exit code. It panics on an unknown name since
// every call site names a literal from the table above — an unknown
// name is a programming error, not a runtime condition.
func Code(name string) Result {
	r, ok := codeTable[name]
	if !ok {
		panic("dispatch: unknown exit code " + name)
	}
	return r
}
