package safety

import "strings"

// Redacted replaces every value whose key matches the sensitive-field
// denylist. The literal is part of the audit contract.
const Redacted = "[REDACTED]"

// sensitiveKeyParts is the denylist of key substrings whose values must
// never reach storage or a notification channel.
var sensitiveKeyParts = []string{"password", "token", "key", "secret"}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// Sanitize deep-copies data and recursively scrubs sensitive fields. The
// caller's map is never touched, and the returned copy shares no mutable
// structure with it. Sanitization happens before any persistence or
// emission, never after.
func Sanitize(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if isSensitiveKey(k) {
			out[k] = Redacted
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Sanitize(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}
