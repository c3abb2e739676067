// SPDX-License-Identifier: LGPL-3.0-or-later

// Package dispatch resolves a transaction code and decrypted payload
// to a handler, threads the request_uuid convention through every
// response, and falls back to a fixed error envelope for unknown
// codes.
package dispatch

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/mk-samoilov/shadowwire-server/internal/metrics"
	"github.com/mk-samoilov/shadowwire-server/storage"
)

// HandlerFunc is the uniform shape every handler implements: given the
// store and the decoded request arguments, produce a serialized
// response envelope and a response code.
type HandlerFunc func(store *storage.Store, args map[string]any) ([]byte, string)

// connectionTestCode is special-cased: it never reaches the handler
// table.
const connectionTestCode = "CONNECTION_TEST"

// Dispatcher owns the transaction-code to handler table. Safe for
// concurrent use: Register is expected at startup before any
// Dispatch call, but the lock makes both safe regardless.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Register adds a single handler under a transaction code, matched
// case-insensitively at dispatch time.
func (d *Dispatcher) Register(transCode string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[strings.ToLower(transCode)] = fn
}

// RegisterAll merges a handler set, e.g. one returned by a
// handlers/*.go package-level table.
func (d *Dispatcher) RegisterAll(set map[string]HandlerFunc) {
	for code, fn := range set {
		d.Register(code, fn)
	}
}

// Dispatch decodes the payload, special-cases CONNECTION_TEST, looks
// up a handler by the lowercased transaction code, and threads
// request_uuid through whatever response comes back.
func (d *Dispatcher) Dispatch(store *storage.Store, transCode string, payload []byte) ([]byte, string) {
	args := map[string]any{}
	if err := json.Unmarshal(payload, &args); err != nil {
		args = map[string]any{}
	}

	var requestUUID string
	if v, ok := args["request_uuid"]; ok {
		if s, ok := v.(string); ok {
			requestUUID = s
		}
		delete(args, "request_uuid")
	}

	lowerCode := strings.ToLower(transCode)

	if transCode == connectionTestCode {
		respCode := connectionTestCode + ":RESPONSE"
		metrics.RequestsDispatched.WithLabelValues(lowerCode, respCode).Inc()
		return addRequestUUID(payload, requestUUID), respCode
	}

	d.mu.RLock()
	handler, ok := d.handlers[lowerCode]
	d.mu.RUnlock()

	if !ok {
		metrics.UnknownTransactionCodes.Inc()
		metrics.RequestsDispatched.WithLabelValues(lowerCode, "invalid_transaction_code").Inc()
		response, err := EncodeEnvelope(Code("invalid_transaction_code"), nil)
		if err != nil {
			response = []byte(`[["server_other_error","internal server error"],null]`)
		}
		return addRequestUUID(response, requestUUID), "ERROR:RESPONSE"
	}

	start := time.Now()
	response, responseCode := handler(store, args)
	metrics.DispatchDuration.WithLabelValues(lowerCode).Observe(time.Since(start).Seconds())
	metrics.RequestsDispatched.WithLabelValues(lowerCode, responseCode).Inc()
	return addRequestUUID(response, requestUUID), responseCode
}
