// ABOUTME: Binary-safe JSON codec for opaque key material values
// ABOUTME: Raw byte buffers are tagged and base64-encoded so they round-trip exactly at any nesting depth

package keystore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// bufferTag marks an encoded byte buffer inside the JSON structure.
// A map with exactly this one key decodes back to []byte.
const bufferTag = "$buffer"

// Marshal serializes an opaque key material value to JSON. Values are
// JSON-shaped: maps, slices, strings, numbers, booleans, nil, plus raw
// []byte buffers at any depth, which are tagged and base64-encoded so
// they survive the trip byte-exactly.
func Marshal(v any) ([]byte, error) {
	encoded, err := encodeValue(v)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return nil, fmt.Errorf("encoding key value: %w", err)
	}
	return data, nil
}

// Unmarshal reverses Marshal, restoring tagged buffers to []byte.
func Unmarshal(data []byte) (any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding key value: %w", err)
	}
	return decodeValue(raw)
}

// encodeValue walks the value, replacing []byte leaves with tagged maps.
func encodeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return map[string]any{bufferTag: base64.StdEncoding.EncodeToString(t)}, nil
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			enc, err := encodeValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			enc, err := encodeValue(elem)
			if err != nil {
				return nil, err
			}
			out[k] = enc
		}
		return out, nil
	case bool, string, float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64, json.Number:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported key value type %T", v)
	}
}

// decodeValue walks parsed JSON, restoring tagged maps to []byte.
func decodeValue(v any) (any, error) {
	switch t := v.(type) {
	case []any:
		for i, elem := range t {
			dec, err := decodeValue(elem)
			if err != nil {
				return nil, err
			}
			t[i] = dec
		}
		return t, nil
	case map[string]any:
		if encoded, ok := bufferPayload(t); ok {
			buf, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				return nil, fmt.Errorf("decoding tagged buffer: %w", err)
			}
			return buf, nil
		}
		for k, elem := range t {
			dec, err := decodeValue(elem)
			if err != nil {
				return nil, err
			}
			t[k] = dec
		}
		return t, nil
	default:
		return v, nil
	}
}

// bufferPayload reports whether m is a tagged buffer and returns its payload.
func bufferPayload(m map[string]any) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	payload, ok := m[bufferTag].(string)
	return payload, ok
}
