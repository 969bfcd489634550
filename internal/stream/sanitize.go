package stream

import (
	"bytes"
	"encoding/json"
	"strings"
)

// sensitiveKeySubstrings marks JSON object keys whose values are replaced
// before any event leaves the process. Matching is case-insensitive
// substring so variants like "apiKey" and "WEBHOOK_SECRET" are caught.
var sensitiveKeySubstrings = []string{
	"password",
	"secret",
	"token",
	"apikey",
	"api_key",
	"authorization",
	"credential",
	"cookie",
	"private_key",
	"env",
}

const redactedMarker = "<redacted>"

// Sanitize strips secret-bearing fields from a JSON payload. Non-JSON
// input is replaced wholesale rather than passed through unchecked.
func Sanitize(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return json.RawMessage(`"` + redactedMarker + `"`)
	}
	sanitized := sanitizeValue(value)
	out, err := json.Marshal(sanitized)
	if err != nil {
		return json.RawMessage(`"` + redactedMarker + `"`)
	}
	return out
}

func sanitizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			if isSensitiveKey(k) {
				out[k] = redactedMarker
				continue
			}
			out[k] = sanitizeValue(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(t))
		for _, vv := range t {
			out = append(out, sanitizeValue(vv))
		}
		return out
	default:
		return v
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeySubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// RedactToken replaces any occurrence of the token value in s with a fixed
// marker. Used before a connection error or log line can echo a query
// string containing ?token=.
func RedactToken(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, redactedMarker)
}
