package utils

import (
	"encoding/json"
	"time"
)

// ToStringSlice filters a decoded JSON array down to its string members.
// Non-string members are dropped rather than reported.
func ToStringSlice(slice any) []string {
	raw, ok := slice.([]any)
	if !ok {
		return nil
	}
	stringSlice := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			stringSlice = append(stringSlice, s)
		}
	}
	return stringSlice
}

// UnixTime converts a decoded JSON numeric claim (exp, iat) into a time.Time.
// Returns the zero time when the value is absent or not numeric.
func UnixTime(v any) time.Time {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0)
	case int64:
		return time.Unix(n, 0)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return time.Unix(i, 0)
		}
	}
	return time.Time{}
}

// String extracts a string claim, returning "" for absent or non-string values.
func String(v any) string {
	s, _ := v.(string)
	return s
}
