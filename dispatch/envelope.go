// SPDX-License-Identifier: LGPL-3.0-or-later

package dispatch

import "encoding/json"

// EncodeEnvelope serializes the `(result, data)` response envelope.
// data may be nil, a scalar, or a map — the wire format is a bare
// 2-element JSON array, matching the original's json.dumps((result,
// data)) exactly.
func EncodeEnvelope(result Result, data any) ([]byte, error) {
	return json.Marshal([2]any{[2]string{result[0], result[1]}, data})
}

// addRequestUUID implements add_request_uuid_to_response: if
// requestUUID is empty, response is returned untouched. Otherwise it
// tries to parse response as a 2-element JSON array; on any parse
// failure, or if it isn't a 2-element array, the response is returned
// untouched. Otherwise data is normalized to a map (null becomes {},
// a non-map scalar becomes {"data": scalar}), "request_uuid" is set,
// and the envelope is re-serialized.
func addRequestUUID(response []byte, requestUUID string) []byte {
	if requestUUID == "" {
		return response
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(response, &parts); err != nil || len(parts) != 2 {
		return response
	}

	var data any
	if err := json.Unmarshal(parts[1], &data); err != nil {
		return response
	}

	dataMap, ok := data.(map[string]any)
	if !ok {
		if data == nil {
			dataMap = map[string]any{}
		} else {
			dataMap = map[string]any{"data": data}
		}
	}
	dataMap["request_uuid"] = requestUUID

	rewritten, err := json.Marshal([2]any{json.RawMessage(parts[0]), dataMap})
	if err != nil {
		return response
	}
	return rewritten
}
