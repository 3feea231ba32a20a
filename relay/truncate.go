package relay

import (
	"encoding/json"
	"unicode/utf8"
)

// DefaultTruncateLimit bounds upstream bodies echoed back to clients.
const DefaultTruncateLimit = 2048

// Truncate bounds upstream for inclusion in a client response. Strings are
// cut to at most limit bytes on a rune boundary. Parsed JSON is returned
// unchanged when its encoding fits, otherwise as its truncated encoding.
func Truncate(upstream any, limit int) any {
	switch v := upstream.(type) {
	case nil:
		return nil
	case string:
		return truncateString(v, limit)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		if len(b) <= limit {
			return v
		}
		return truncateString(string(b), limit)
	}
}

func truncateString(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
